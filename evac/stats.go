package evac

import "github.com/bnclabs/goevac/api"
import "github.com/bnclabs/goevac/lib"
import "github.com/bnclabs/golog"

// PrintTerminationStatsHdr log the header for per-worker termination
// stats rows.
func PrintTerminationStatsHdr() {
	log.Infof("GC Termination Stats\n")
	log.Infof("     elapsed  --strong roots-- -------termination------- ------waste (KiB)------\n")
	log.Infof("thr     ms        ms      %%        ms      %%    attempts  total   alloc    undo\n")
	log.Infof("--- --------- --------- ------ --------- ------ -------- ------- ------- -------\n")
}

// PrintTerminationStats log one row of end-of-pause stats for this
// worker: elapsed time, strong-roots and termination time with their
// share of elapsed, termination attempts and waste split.
func (w *Worker) PrintTerminationStats() {
	elapsedms := float64(w.ElapsedTime().Microseconds()) / 1000.0
	rootsms := float64(w.strongroots.Microseconds()) / 1000.0
	termms := float64(w.termtime.Microseconds()) / 1000.0
	allocwaste, undowaste := w.pa.Waste()
	tokib := func(words int64) int64 {
		return words * api.Wordsize / 1024
	}
	log.Infof(
		"%3v %9.2f %9.2f %6.2f %9.2f %6.2f %8v %7v %7v %7v\n",
		w.id, elapsedms,
		rootsms, lib.Percent(rootsms, elapsedms),
		termms, lib.Percent(termms, elapsedms),
		w.termattempts,
		tokib(allocwaste+undowaste), tokib(allocwaste), tokib(undowaste))
}
