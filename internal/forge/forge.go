// Package forge defines the capability contract for the code-hosting service
// carrying the stack's pull requests, and the GitHub implementation.
package forge

import (
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/model"
)

// PRState is the forge-side lifecycle state of a pull request.
type PRState string

const (
	PROpen   PRState = "open"
	PRClosed PRState = "closed"
	PRMerged PRState = "merged"
	PRDraft  PRState = "draft"
)

// PR is a pull request snapshot.
type PR struct {
	Number     model.PrNumber
	Title      string
	Body       string
	State      PRState
	HeadBranch string
	BaseBranch string
	URL        string
}

// CreatePR is the request to open a new pull request.
type CreatePR struct {
	Title string
	Body  string
	Head  model.BranchName
	Base  model.BranchName
	Draft bool
}

// UpdatePR updates a pull request; nil fields are left unchanged.
type UpdatePR struct {
	Title *string
	Body  *string
	Base  *model.BranchName
}

// MergeMethod selects how the forge merges a PR.
type MergeMethod string

const (
	MergeSquash MergeMethod = "squash"
	MergeMerge  MergeMethod = "merge"
	MergeRebase MergeMethod = "rebase"
)

// ParseMergeMethod validates a user-supplied merge method.
func ParseMergeMethod(s string) (MergeMethod, error) {
	switch MergeMethod(s) {
	case MergeSquash, MergeMerge, MergeRebase:
		return MergeMethod(s), nil
	}
	return "", errs.New(errs.KindUsage, "invalid merge method %q: use squash, merge, or rebase", s)
}

// MergeResult reports a completed merge.
type MergeResult struct {
	SHA    model.Commit
	Merged bool
}

// Comment is an issue/PR comment.
type Comment struct {
	ID   int64
	Body string
}

// Driver is the forge capability contract. All calls are idempotent on the
// inputs rung provides, which is what makes the bounded retry policy safe.
type Driver interface {
	GetPR(number model.PrNumber) (PR, error)
	FindPRForBranch(branch model.BranchName) (*PR, error)
	CreatePullRequest(req CreatePR) (PR, error)
	UpdatePullRequest(number model.PrNumber, upd UpdatePR) (PR, error)
	MergePR(number model.PrNumber, method MergeMethod) (MergeResult, error)
	DeleteRemoteBranch(branch model.BranchName) error

	ListComments(number model.PrNumber) ([]Comment, error)
	CreateComment(number model.PrNumber, body string) error
	UpdateComment(commentID int64, body string) error
}
