package models

import "testing"

func TestPRRefNumber(t *testing.T) {
	cases := []struct {
		ref    string
		number int
		ok     bool
	}{
		{"PR-15", 15, true},
		{"PR-1", 1, true},
		{"PR-100", 100, true},
		{"master", 0, false},
		{"feature/PR-checks", 0, false},
		{"PR-", 0, false},
		{"PR-abc", 0, false},
		{"PR-0", 0, false},
		{"PR--3", 0, false},
		{"pr-15", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		n, ok := PRRefNumber(tc.ref)
		if ok != tc.ok || n != tc.number {
			t.Errorf("PRRefNumber(%q) = (%d, %v), want (%d, %v)", tc.ref, n, ok, tc.number, tc.ok)
		}
	}
}

func TestIsPullRequestRef(t *testing.T) {
	if !IsPullRequestRef("PR-42") {
		t.Error("PR-42 should be a pull request ref")
	}
	if IsPullRequestRef("release-1.0") {
		t.Error("release-1.0 should not be a pull request ref")
	}
}
