package service

import (
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/forge"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
	"github.com/k4r01q/rung/internal/render"
)

// MergeReport describes a completed (or paused) merge.
type MergeReport struct {
	Branch     model.BranchName   `json:"branch"`
	PR         model.PrNumber     `json:"pr"`
	Method     forge.MergeMethod  `json:"method"`
	MergeSHA   model.Commit       `json:"merge_sha,omitempty"`
	Reparented []model.BranchName `json:"reparented,omitempty"`
	SyncPaused bool               `json:"sync_paused,omitempty"`
}

// Merge merges the current branch's PR on the forge, re-parents its children
// onto the trunk, rebases their subtrees onto the new trunk tip, and removes
// the branch from the stack. Each step is idempotent against its
// postcondition, so an interrupted merge can be re-run.
func (s *Service) Merge(methodStr string, noDelete bool) (*MergeReport, error) {
	method, err := forge.ParseMergeMethod(methodStr)
	if err != nil {
		return nil, err
	}
	if err := s.requireForge(); err != nil {
		return nil, err
	}
	if err := s.requireNoJournal(); err != nil {
		return nil, err
	}
	if err := s.requireNoRebase(); err != nil {
		return nil, err
	}
	if err := s.requireCleanTree(); err != nil {
		return nil, err
	}

	current, err := s.requireNotDetached()
	if err != nil {
		return nil, err
	}
	node := s.stack.Get(current)
	if node == nil {
		return nil, errs.New(errs.KindUsage, "current branch '%s' is not in the stack", current)
	}
	if node.Parent != s.Trunk() {
		blockers := s.stack.AncestorsToTrunk(current)
		return nil, errs.New(errs.KindNotAtStackBottom,
			"'%s' is not at the bottom of its stack; merge %v first", current, blockers).
			WithSuggestion("merge the ancestors bottom-up, or checkout the bottom branch")
	}
	if !node.PR.Valid() {
		return nil, errs.New(errs.KindUsage, "branch '%s' has no PR", current).
			WithSuggestion("run `rung submit` first")
	}

	report := &MergeReport{Branch: current, PR: node.PR, Method: method}

	// 1. Make sure the local view of the trunk is current before anything
	// lands on it.
	if err := s.Git.Fetch(s.cfg.Remote, s.Trunk()); err != nil {
		logs.Warn("Could not fetch %s: %v", s.Trunk(), err)
	}

	// 2. Merge on the forge. A previous interrupted run may have gotten this
	// far already; merging a merged PR is an API error, so check first.
	if pr, err := s.Forge.GetPR(node.PR); err == nil && pr.State == forge.PRMerged {
		logs.Info("PR #%d is already merged; resuming cleanup", node.PR)
	} else {
		merged, err := s.Forge.MergePR(node.PR, method)
		if err != nil {
			return nil, err
		}
		report.MergeSHA = merged.SHA
		logs.Info("Merged PR #%d (%s) via %s", node.PR, current, method)
	}

	// 3. Re-parent the children onto the trunk, in the model first, then on
	// the forge. The remote merge has completed, so this never runs ahead of
	// reality.
	children := s.stack.Children(current)
	for _, c := range children {
		if err := s.stack.SetParent(c, s.Trunk()); err != nil {
			return nil, err
		}
	}
	if err := s.saveStack(); err != nil {
		return nil, err
	}
	report.Reparented = children
	for _, c := range children {
		child := s.stack.Get(c)
		if !child.PR.Valid() {
			continue
		}
		trunk := s.Trunk()
		if _, err := s.Forge.UpdatePullRequest(child.PR, forge.UpdatePR{Base: &trunk}); err != nil {
			logs.Warn("Could not update base of PR #%d: %v", child.PR, err)
		}
	}

	// 4. Fast-forward the local trunk to include the merge commit.
	if err := s.Git.Fetch(s.cfg.Remote, s.Trunk()); err != nil {
		logs.Warn("Could not fetch %s: %v", s.Trunk(), err)
	}
	if err := s.Git.PullFFOnly(s.cfg.Remote, s.Trunk()); err != nil {
		logs.Warn("Could not fast-forward %s: %v", s.Trunk(), err)
	}

	// 5. Settle the former children onto the new trunk tip. A conflict here
	// leaves the sync journal behind; the user resolves it with
	// `rung sync --continue` and re-runs the merge cleanup if needed.
	if len(children) > 0 {
		if _, err := s.syncScoped(s.Trunk(), s.Trunk(), children, false); err != nil {
			if errs.Is(err, errs.KindConflictPaused) {
				report.SyncPaused = true
				return report, errs.Wrap(err, errs.KindDescendantSyncPaused,
					"merge of '%s' complete but rebasing its descendants hit a conflict", current)
			}
			return nil, err
		}
	} else {
		// No descendants to settle; end up on the trunk like the sync would.
		if err := s.Git.Checkout(s.Trunk()); err != nil {
			return nil, err
		}
	}

	// 6. Drop the merged branch: from the stack, locally, and remotely.
	if err := s.Git.Checkout(s.Trunk()); err != nil {
		return nil, err
	}
	if err := s.stack.Remove(current); err != nil {
		return nil, err
	}
	if err := s.saveStack(); err != nil {
		return nil, err
	}
	if err := s.Git.DeleteBranch(current, true); err != nil {
		logs.Warn("Could not delete local branch '%s': %v", current, err)
	}
	if !noDelete {
		if err := s.Forge.DeleteRemoteBranch(current); err != nil {
			logs.Warn("Could not delete remote branch '%s': %v", current, err)
		}
	}

	// 7. Refresh the stack comment on every PR in the affected subtrees.
	for _, c := range children {
		s.postStackComment(c)
		for _, d := range s.stack.Descendants(c) {
			s.postStackComment(d)
		}
	}

	return report, nil
}

// postStackComment renders and upserts the stack comment for branch's PR.
// Best effort: a failed comment never fails the operation that triggered it.
func (s *Service) postStackComment(branch model.BranchName) {
	node := s.stack.Get(branch)
	if node == nil || !node.PR.Valid() {
		return
	}
	body := render.Comment(s.stack, branch)
	comments, err := s.Forge.ListComments(node.PR)
	if err != nil {
		logs.Warn("Could not list comments on PR #%d: %v", node.PR, err)
		return
	}
	for _, c := range comments {
		if render.IsStackComment(c.Body) {
			if err := s.Forge.UpdateComment(c.ID, body); err != nil {
				logs.Warn("Could not update stack comment on PR #%d: %v", node.PR, err)
			}
			return
		}
	}
	if err := s.Forge.CreateComment(node.PR, body); err != nil {
		logs.Warn("Could not create stack comment on PR #%d: %v", node.PR, err)
	}
}
