package api

import "errors"

// ErrorOutofMemory heap cannot supply any more memory for the requested
// space class.
var ErrorOutofMemory = errors.New("evac.outofmemory")

// ErrorInvalidSettings settings parameters are inconsistent, like a
// compressed-reference heap wider than 32-bit addresses.
var ErrorInvalidSettings = errors.New("evac.invalidsettings")

// MaxAge saturation point for object age, the header carries four
// age bits.
const MaxAge = uint(15)

// MinRegionWords smallest allowed region size in words.
const MinRegionWords = int64(64)
