package service

import (
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/git"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
)

// CreateResult describes what `rung create` did.
type CreateResult struct {
	Name      model.BranchName
	Parent    model.BranchName
	Committed bool
	Depth     int
}

// Create makes a new branch stacked on the current one, tracks it, and checks
// it out. When message is given, pending changes are committed on the new
// branch with it; if name is empty, the name is derived by slugifying it.
func (s *Service) Create(name, message string) (*CreateResult, error) {
	if err := s.requireNoJournal(); err != nil {
		return nil, err
	}
	current, err := s.requireNotDetached()
	if err != nil {
		return nil, err
	}
	if current != s.Trunk() && !s.stack.Has(current) {
		return nil, errs.New(errs.KindUsage, "current branch '%s' is neither the trunk nor tracked", current).
			WithSuggestion("checkout the trunk or a tracked branch first")
	}

	var branch model.BranchName
	switch {
	case name != "":
		if branch, err = model.NewBranchName(name); err != nil {
			return nil, err
		}
	case message != "":
		if branch, err = model.BranchNameFromMessage(message); err != nil {
			return nil, err
		}
	default:
		return nil, errs.New(errs.KindUsage, "either a branch name or --message must be provided")
	}

	if s.Git.BranchExists(branch) {
		return nil, errs.New(errs.KindUsage, "branch '%s' already exists", branch)
	}

	if err := s.Git.CreateBranch(branch); err != nil {
		return nil, err
	}
	if err := s.stack.Add(branch, current, s.now()); err != nil {
		return nil, err
	}
	if err := s.saveStack(); err != nil {
		return nil, err
	}
	if err := s.Git.Checkout(branch); err != nil {
		return nil, err
	}

	res := &CreateResult{Name: branch, Parent: current, Depth: len(s.stack.AncestorsToTrunk(branch)) + 1}
	if message != "" {
		clean, err := s.Git.IsWorkingTreeClean()
		if err != nil {
			return nil, err
		}
		if clean {
			logs.Info("Working tree clean; created '%s' without a commit", branch)
		} else {
			if err := s.Git.StageAll(); err != nil {
				return nil, err
			}
			if _, err := s.Git.Commit(message); err != nil {
				return nil, err
			}
			res.Committed = true
		}
	}
	return res, nil
}

// Next checks out the child of the current branch. With several children it
// follows the most recently created one; a tie is AmbiguousChild.
func (s *Service) Next() (model.BranchName, error) {
	current, err := s.requireNotDetached()
	if err != nil {
		return "", err
	}
	if current != s.Trunk() && !s.stack.Has(current) {
		return "", errs.New(errs.KindUsage, "current branch '%s' is not in the stack", current)
	}
	child, err := s.stack.MainPathChild(current)
	if err != nil {
		return "", err
	}
	if err := s.Git.Checkout(child); err != nil {
		return "", err
	}
	return child, nil
}

// Prev checks out the parent of the current branch; from a bottom branch it
// returns to the trunk.
func (s *Service) Prev() (model.BranchName, error) {
	current, err := s.requireNotDetached()
	if err != nil {
		return "", err
	}
	node := s.stack.Get(current)
	if node == nil {
		return "", errs.New(errs.KindUsage, "current branch '%s' is not in the stack", current)
	}
	if err := s.Git.Checkout(node.Parent); err != nil {
		return "", err
	}
	return node.Parent, nil
}

// MoveTo checks out a named tracked branch.
func (s *Service) MoveTo(name string) (model.BranchName, error) {
	branch, err := model.NewBranchName(name)
	if err != nil {
		return "", err
	}
	if !s.stack.Has(branch) && branch != s.Trunk() {
		return "", errs.New(errs.KindMissingBranch, "branch '%s' is not in the stack", branch)
	}
	if err := s.Git.Checkout(branch); err != nil {
		return "", err
	}
	return branch, nil
}

// Log returns the commits on the current branch that its parent does not
// have (parent..HEAD).
func (s *Service) Log() ([]git.LogEntry, error) {
	current, err := s.requireNotDetached()
	if err != nil {
		return nil, err
	}
	node := s.stack.Get(current)
	if node == nil {
		return nil, errs.New(errs.KindUsage, "current branch '%s' is not in the stack", current)
	}
	parentTip, err := s.tip(node.Parent)
	if err != nil {
		return nil, err
	}
	tip, err := s.tip(current)
	if err != nil {
		return nil, err
	}
	return s.Git.LogRange(parentTip, tip)
}

// BranchStatus is one row of the status tree.
type BranchStatus struct {
	Name    model.BranchName `json:"name"`
	Parent  model.BranchName `json:"parent"`
	Depth   int              `json:"depth"`
	Current bool             `json:"current"`
	Missing bool             `json:"missing"`
	InSync  bool             `json:"in_sync"`
	Behind  int              `json:"behind,omitempty"`
	PR      int              `json:"pr,omitempty"`
	PRState string           `json:"pr_state,omitempty"`
	PRURL   string           `json:"pr_url,omitempty"`
}

// StatusReport is the full tree, in topological order.
type StatusReport struct {
	Trunk    model.BranchName `json:"trunk"`
	Branches []BranchStatus   `json:"branches"`
}

// Status computes the sync state of every tracked branch. With fetch, PR
// status is refreshed from the forge first and cached on the stack.
func (s *Service) Status(fetch bool) (*StatusReport, error) {
	if fetch {
		if err := s.refreshPRStatus(); err != nil {
			return nil, err
		}
	}

	current, _ := s.Git.CurrentBranch()
	report := &StatusReport{Trunk: s.Trunk()}

	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)
		row := BranchStatus{
			Name:    name,
			Parent:  node.Parent,
			Depth:   len(s.stack.AncestorsToTrunk(name)) + 1,
			Current: name == current,
			PR:      int(node.PR),
			PRState: node.PRState,
			PRURL:   node.PRURL,
		}
		if !s.Git.BranchExists(name) {
			row.Missing = true
			report.Branches = append(report.Branches, row)
			continue
		}
		tip, err := s.tip(name)
		if err != nil {
			return nil, err
		}
		parentTip, err := s.tip(node.Parent)
		if err != nil {
			// Parent may only exist on the remote; treat as missing info.
			row.Missing = true
			report.Branches = append(report.Branches, row)
			continue
		}
		base, err := s.Git.MergeBase(tip, parentTip)
		if err != nil {
			return nil, err
		}
		if base == parentTip {
			row.InSync = true
		} else {
			behind, err := s.Git.CountCommits(base, parentTip)
			if err != nil {
				return nil, err
			}
			row.Behind = behind
		}
		report.Branches = append(report.Branches, row)
	}
	return report, nil
}

func (s *Service) refreshPRStatus() error {
	if err := s.requireForge(); err != nil {
		return err
	}
	changed := false
	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)
		if !node.PR.Valid() {
			continue
		}
		pr, err := s.Forge.GetPR(node.PR)
		if err != nil {
			logs.Warn("Could not fetch PR #%d for '%s': %v", node.PR, name, err)
			continue
		}
		node.PRState = string(pr.State)
		node.PRURL = pr.URL
		node.PRFetchedAt = s.now()
		changed = true
	}
	if changed {
		return s.saveStack()
	}
	return nil
}
