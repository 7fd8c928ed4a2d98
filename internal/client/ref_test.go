package client

import "testing"

const canonical = "https://github.com/refbatch/project"

func TestResolveSourcePush(t *testing.T) {
	src := ResolveSource(CIEvent{Branch: "master"}, canonical)
	if src.Ref != "master" {
		t.Errorf("ref = %q, want %q", src.Ref, "master")
	}
	if src.Remote != canonical {
		t.Errorf("remote = %q, want default remote", src.Remote)
	}
}

func TestResolveSourcePullRequest(t *testing.T) {
	src := ResolveSource(CIEvent{
		Branch:      "PR-15",
		HeadRef:     "fix-tokenizer",
		HeadRepoURL: "https://github.com/contributor/project",
	}, canonical)

	if src.Ref != "fix-tokenizer" {
		t.Errorf("ref = %q, want the PR head ref", src.Ref)
	}
	if src.Remote != "https://github.com/contributor/project" {
		t.Errorf("remote = %q, want the PR head repository", src.Remote)
	}
}

func TestResolveSourcePullRequestWithoutHeadInfo(t *testing.T) {
	// Without head details the PR ref itself is submitted; the executor
	// resolves it via refs/pull/<n>/head on the default remote.
	src := ResolveSource(CIEvent{Branch: "PR-15"}, canonical)
	if src.Ref != "PR-15" {
		t.Errorf("ref = %q, want %q", src.Ref, "PR-15")
	}
	if src.Remote != canonical {
		t.Errorf("remote = %q, want default remote", src.Remote)
	}
}

func TestResolveSourceBranchNamedLikeAlmostPR(t *testing.T) {
	src := ResolveSource(CIEvent{Branch: "PR-fixes"}, canonical)
	if src.Ref != "PR-fixes" || src.Remote != canonical {
		t.Errorf("got (%q, %q), want the push behavior", src.Ref, src.Remote)
	}
}
