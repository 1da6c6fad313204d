// Package vercmp validates and orders dot-separated numeric version strings.
//
// A version is a sequence of non-negative integers separated by dots, such as
// "0.1.21" or "2.0". Versions with different segment counts compare as if the
// shorter one were padded with trailing zeros, so "1.2" equals "1.2.0".
package vercmp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tuple is the parsed integer form of a version string.
type Tuple []uint64

// IsValid reports whether v is non-empty and every dot-separated segment is a
// base-10 non-negative integer. Leading zeros are allowed.
func IsValid(v string) bool {
	if v == "" {
		return false
	}
	for _, seg := range strings.Split(v, ".") {
		if _, ok := parseSegment(seg); !ok {
			return false
		}
	}
	return true
}

// Parse converts v into a Tuple, rejecting strings that fail IsValid.
func Parse(v string) (Tuple, error) {
	if v == "" {
		return nil, fmt.Errorf("empty version")
	}
	segs := strings.Split(v, ".")
	t := make(Tuple, len(segs))
	for i, seg := range segs {
		n, ok := parseSegment(seg)
		if !ok {
			return nil, fmt.Errorf("invalid version %q: segment %d (%q) is not a non-negative integer", v, i, seg)
		}
		t[i] = n
	}
	return t, nil
}

// Compare orders a and b as integer tuples and returns -1, 0 or 1.
//
// Callers are expected to check IsValid first. Unparseable segments are read
// as 0 rather than failing, so an invalid input yields a stable but
// meaningless ordering instead of an error.
func Compare(a, b string) int {
	ta, tb := lenient(a), lenient(b)

	n := max(len(ta), len(tb))
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(ta) {
			x = ta[i]
		}
		if i < len(tb) {
			y = tb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// Newer reports whether candidate is strictly newer than current.
func Newer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}

// Sort orders versions ascending in place. Equal versions keep their
// relative order.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

func lenient(v string) Tuple {
	if v == "" {
		return nil
	}
	segs := strings.Split(v, ".")
	t := make(Tuple, len(segs))
	for i, seg := range segs {
		n, _ := parseSegment(seg)
		t[i] = n
	}
	return t
}

// parseSegment accepts only ASCII digits; strconv alone would also accept a
// leading '+'.
func parseSegment(seg string) (uint64, bool) {
	if seg == "" {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(seg, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
