package client

import "github.com/refbatch/refbatch/internal/models"

// CIEvent carries what the surrounding CI run knows about the change under
// test. For pushes only Branch is set; for pull requests the CI system checks
// out a synthetic "PR-<n>" branch and also knows the head ref and repository.
type CIEvent struct {
	Branch      string
	HeadRef     string
	HeadRepoURL string
}

// Source is the resolved ref/remote pair a job builds.
type Source struct {
	Ref    string
	Remote string
}

// ResolveSource decides what a job checks out. A push builds its branch from
// the default remote. A pull request builds the head branch from the head
// repository, so fork PRs get the fork's code; when the head details are
// missing the "PR-<n>" ref itself is submitted and the executor fetches
// refs/pull/<n>/head instead.
func ResolveSource(event CIEvent, defaultRemote string) Source {
	if models.IsPullRequestRef(event.Branch) && event.HeadRef != "" && event.HeadRepoURL != "" {
		return Source{Ref: event.HeadRef, Remote: event.HeadRepoURL}
	}
	return Source{Ref: event.Branch, Remote: defaultRemote}
}
