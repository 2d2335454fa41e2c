// Package chatid normalizes chat source identifiers.
//
// Broadcast-type sources are exposed under two concurrent encodings: a
// "short" positive integer and a "fully-qualified" negative integer carrying
// the -100 prefix (short 12345 <-> qualified -10012345). Operators store
// whichever form they happen to have, and inbound events may carry either,
// so membership checks must treat both forms as the same source.
package chatid

import (
	"strconv"
	"strings"
)

const qualifiedPrefix = "-100"

// Qualify returns the fully-qualified form of a short positive identifier.
// Non-positive identifiers are returned unchanged.
func Qualify(id int64) int64 {
	if id <= 0 {
		return id
	}
	q, err := strconv.ParseInt(qualifiedPrefix+strconv.FormatInt(id, 10), 10, 64)
	if err != nil {
		// Overflow. Leave the id as-is rather than corrupt it.
		return id
	}
	return q
}

// Short returns the short form of a fully-qualified identifier, and whether
// the input carried the -100 prefix at all.
func Short(id int64) (int64, bool) {
	s := strconv.FormatInt(id, 10)
	if !strings.HasPrefix(s, qualifiedPrefix) || len(s) == len(qualifiedPrefix) {
		return id, false
	}
	short, err := strconv.ParseInt(s[len(qualifiedPrefix):], 10, 64)
	if err != nil {
		return id, false
	}
	return short, true
}

// Expand returns the equivalence set of an identifier: the id as given,
// plus the fully-qualified form for positive ids, plus the short form for
// ids carrying the -100 prefix. Expanding twice yields the same set as
// expanding once.
func Expand(id int64) []int64 {
	set := []int64{id}
	if id > 0 {
		if q := Qualify(id); q != id {
			set = append(set, q)
		}
	} else if short, ok := Short(id); ok {
		set = append(set, short)
	}
	return set
}
