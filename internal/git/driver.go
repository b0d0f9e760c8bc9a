// Package git defines the capability contract the engines use to mutate the
// local repository, and its implementation that shells out to git. The
// engines never invoke a shell directly, and every branch or commit argument
// is a validated newtype, so unvalidated strings cannot reach a subprocess.
package git

import "github.com/k4r01q/rung/internal/model"

// RebaseOutcome is the result of a rebase attempt.
type RebaseOutcome struct {
	Clean  bool
	NewTip model.Commit
	// Conflicted files when Clean is false.
	Files []string
}

// LogEntry is one commit in a log range.
type LogEntry struct {
	Commit  model.Commit
	Subject string
	Author  string
}

// Driver is the local-repository capability contract.
type Driver interface {
	CurrentBranch() (model.BranchName, error)
	IsDetachedHead() (bool, error)
	IsWorkingTreeClean() (bool, error)
	HasRebaseInProgress() (bool, error)
	BranchExists(branch model.BranchName) bool

	Tip(branch model.BranchName) (model.Commit, error)
	RemoteTip(remote string, branch model.BranchName) (model.Commit, error)
	MergeBase(a, b model.Commit) (model.Commit, error)
	CountCommits(from, to model.Commit) (int, error)
	LogRange(from, to model.Commit) ([]LogEntry, error)

	Checkout(branch model.BranchName) error
	CreateBranch(name model.BranchName) error
	DeleteBranch(name model.BranchName, force bool) error

	Fetch(remote string, branch model.BranchName) error
	Push(remote string, branch model.BranchName, force bool) error
	PullFFOnly(remote string, branch model.BranchName) error

	RebaseOnto(newBase model.Commit, upstream model.Commit, branch model.BranchName) (RebaseOutcome, error)
	RebaseContinue() (RebaseOutcome, error)
	RebaseAbort() error

	StageAll() error
	Commit(message string) (model.Commit, error)
	ResetHard(branch model.BranchName, target model.Commit) error

	RemoteURL(remote string) (string, error)
	GitDir() (string, error)
}
