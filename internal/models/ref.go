package models

import (
	"strconv"
	"strings"
)

// Pull-request refs follow the PR-<number> convention. A branch named that way
// cannot be pushed directly, so the two cases stay mutually exclusive.

// PRRefNumber parses a PR-<number> source ref. ok is false for branch refs.
func PRRefNumber(ref string) (int, bool) {
	rest, found := strings.CutPrefix(ref, "PR-")
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsPullRequestRef reports whether ref names a pull-request head.
func IsPullRequestRef(ref string) bool {
	_, ok := PRRefNumber(ref)
	return ok
}
