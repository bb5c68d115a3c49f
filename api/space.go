// Package api exported types and interfaces shared by the heap model
// and the evacuation engine.
package api

// Addr word address into the heap. Object addresses point at the
// header word; slot addresses point at a reference field.
type Addr int64

// NilAddr the nil reference.
const NilAddr = Addr(-1)

// Wordsize bytes per heap word.
const Wordsize = int64(8)

// Space classifies heap memory during a pause: outside the collection
// set, young memory whose survivors re-age, or promoted (old) memory.
type Space byte

const (
	// NotInSet memory not chosen for reclamation this pause.
	NotInSet Space = iota
	// Survivor young memory, objects age on every copy.
	Survivor
	// Promoted old memory, objects never age.
	Promoted
	// Numspaces number of space classes.
	Numspaces
)

// InSet whether objects of this class are evacuation candidates.
func (sp Space) InSet() bool {
	return sp == Survivor || sp == Promoted
}

// IsSurvivor whether this class ages its objects.
func (sp Space) IsSurvivor() bool {
	return sp == Survivor
}

func (sp Space) String() string {
	switch sp {
	case NotInSet:
		return "notinset"
	case Survivor:
		return "survivor"
	case Promoted:
		return "promoted"
	}
	return "invalid"
}

// AllocContext opaque placement hint threaded from an object's source
// region to the backing allocator, for NUMA-like placement policies.
type AllocContext byte
