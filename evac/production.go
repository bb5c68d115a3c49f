//go:build !debug
// +build !debug

package evac

// verifyTask no-op outside debug builds, callers are assumed correct.
func (w *Worker) verifyTask(t Task) {
}
