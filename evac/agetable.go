package evac

import "fmt"
import "strings"

import "github.com/bnclabs/goevac/api"

// AgeTable per-worker words copied into survivor space, by destination
// age. Owner-written during the pause, merged centrally afterwards.
type AgeTable struct {
	sizes [api.MaxAge + 1]int64
}

// NewAgeTable return a zeroed age table.
func NewAgeTable() *AgeTable {
	return &AgeTable{}
}

// Add record `words` copied at destination age `age`.
func (at *AgeTable) Add(age uint, words int64) {
	at.sizes[age] += words
}

// Words copied at age.
func (at *AgeTable) Words(age uint) int64 {
	return at.sizes[age]
}

// MergeInto accumulate this table into a central one. Caller
// serializes post-pass merging.
func (at *AgeTable) MergeInto(other *AgeTable) {
	for age, words := range at.sizes {
		other.sizes[age] += words
	}
}

// Logstring non-empty ages in a single line, suitable for logging.
func (at *AgeTable) Logstring() string {
	ss := make([]string, 0, len(at.sizes))
	for age, words := range at.sizes {
		if words > 0 {
			ss = append(ss, fmt.Sprintf("%v:%v", age, words))
		}
	}
	return strings.Join(ss, " ")
}
