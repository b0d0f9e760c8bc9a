// Package service contains the engines: stack operations, the sync engine,
// the merge engine, submit, and doctor. Engines are pure functions of
// (stack, git, forge, clock); the drivers are injected so tests substitute
// in-memory simulators.
package service

import (
	"time"

	"github.com/k4r01q/rung/internal/config"
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/forge"
	"github.com/k4r01q/rung/internal/git"
	"github.com/k4r01q/rung/internal/model"
	"github.com/k4r01q/rung/internal/store"
)

// Service wires the stack model to its drivers and persistence.
type Service struct {
	Store *store.Store
	Git   git.Driver
	Forge forge.Driver
	Clock func() time.Time

	stack   *model.Stack
	cfg     config.Config
	journal *model.Journal
}

// New builds a service. The forge connection is attached lazily by commands
// that need it.
func New(st *store.Store, g git.Driver) *Service {
	return &Service{Store: st, Git: g, Clock: time.Now}
}

// Load hydrates the stack, config, and journal from disk. Callers hold the
// store lock.
func (s *Service) Load() error {
	stack, cfg, journal, err := s.Store.Load()
	if err != nil {
		return err
	}
	s.stack, s.cfg, s.journal = stack, cfg, journal
	return nil
}

func (s *Service) Stack() *model.Stack      { return s.stack }
func (s *Service) Config() config.Config    { return s.cfg }
func (s *Service) Journal() *model.Journal  { return s.journal }
func (s *Service) Trunk() model.BranchName  { return s.stack.Trunk }

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// ConnectForge attaches the GitHub client for the configured remote.
func (s *Service) ConnectForge() error {
	if s.Forge != nil {
		return nil
	}
	remoteURL, err := s.Git.RemoteURL(s.cfg.Remote)
	if err != nil {
		return errs.Wrap(err, errs.KindForgeError, "no %q remote configured", s.cfg.Remote)
	}
	f, err := forge.NewGitHub(remoteURL, config.APIBaseURL())
	if err != nil {
		return err
	}
	s.Forge = f
	return nil
}

func (s *Service) requireForge() error {
	if s.Forge == nil {
		return errs.New(errs.KindNotAuthenticated, "forge connection required").
			WithSuggestion("set GITHUB_TOKEN in the environment")
	}
	return nil
}

func (s *Service) saveStack() error {
	return s.Store.SaveStack(s.stack)
}

// === Workspace preconditions ===

func (s *Service) requireCleanTree() error {
	clean, err := s.Git.IsWorkingTreeClean()
	if err != nil {
		return err
	}
	if !clean {
		return errs.New(errs.KindDirtyWorkingTree, "working tree has uncommitted changes").
			WithSuggestion("commit or stash them, then retry")
	}
	return nil
}

func (s *Service) requireNoRebase() error {
	rebasing, err := s.Git.HasRebaseInProgress()
	if err != nil {
		return err
	}
	if rebasing {
		return errs.New(errs.KindRebaseInProgress, "a git rebase is in progress").
			WithSuggestion("finish it with `git rebase --continue` or `git rebase --abort`")
	}
	return nil
}

func (s *Service) requireNoJournal() error {
	if s.journal != nil {
		return errs.New(errs.KindUsage, "a sync is already in progress").
			WithSuggestion("resume with `rung sync --continue` or roll back with `rung sync --abort`")
	}
	return nil
}

func (s *Service) requireNotDetached() (model.BranchName, error) {
	detached, err := s.Git.IsDetachedHead()
	if err != nil {
		return "", err
	}
	if detached {
		return "", errs.New(errs.KindDetachedHead, "HEAD is detached (not on a branch)").
			WithSuggestion("checkout a branch with `git checkout <branch>`")
	}
	return s.Git.CurrentBranch()
}

// tip resolves a branch tip, treating a missing branch as MissingBranch.
func (s *Service) tip(b model.BranchName) (model.Commit, error) {
	return s.Git.Tip(b)
}
