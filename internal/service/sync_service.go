package service

import (
	"strings"

	"github.com/google/uuid"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
)

// Sync status values reported to the command layer.
const (
	SyncAlreadySynced = "already_synced"
	SyncComplete      = "complete"
	SyncConflict      = "conflict"
	SyncAborted       = "aborted"
)

// SyncResult reports what a sync run did.
type SyncResult struct {
	Status         string           `json:"status"`
	Rebased        int              `json:"branches_rebased"`
	OpID           string           `json:"op_id,omitempty"`
	ConflictBranch model.BranchName `json:"conflict_branch,omitempty"`
	ConflictFiles  []string         `json:"conflict_files,omitempty"`
	Plan           []model.PlanStep `json:"-"`
}

// SyncPlan computes the rebase plan for the subtree under base: the
// descendants that need to move (see planFor), parents before children,
// each step replaying the branch's
// commits since its recorded upstream onto the parent's tip at execution
// time.
func (s *Service) SyncPlan(base model.BranchName) ([]model.PlanStep, error) {
	if base != s.Trunk() && !s.stack.Has(base) {
		return nil, errs.New(errs.KindUsage, "base '%s' is neither the trunk nor a tracked branch", base)
	}
	return s.planFor(s.stack.Descendants(base))
}

// planFor builds steps for the given branches (already in topological
// order). A branch is planned when it has fallen behind its parent, or when
// its parent is planned: the parent's tip will move during execution, so the
// child must follow even if it looks in sync now.
func (s *Service) planFor(branches []model.BranchName) ([]model.PlanStep, error) {
	var plan []model.PlanStep
	planned := map[model.BranchName]bool{}
	for _, name := range branches {
		node := s.stack.Get(name)
		if !s.Git.BranchExists(name) {
			return nil, errs.New(errs.KindMissingBranch, "tracked branch '%s' does not exist locally", name).
				WithSuggestion("run `rung doctor` to inspect the stack")
		}
		oldTip, err := s.tip(name)
		if err != nil {
			return nil, err
		}
		parentTip, err := s.tip(node.Parent)
		if err != nil {
			return nil, err
		}
		base, err := s.Git.MergeBase(oldTip, parentTip)
		if err != nil {
			return nil, err
		}
		if base == parentTip && !planned[node.Parent] {
			continue
		}
		planned[name] = true

		step := model.PlanStep{Branch: name, Parent: node.Parent, OldTip: oldTip}
		if node.LastSyncedParentTip != "" {
			step.Upstream = node.LastSyncedParentTip
		} else {
			step.Upstream = base
		}
		plan = append(plan, step)
	}
	return plan, nil
}

// Sync rebases every descendant of base onto the current tip of its parent,
// in topological order. On a conflict it journals its position and returns
// ConflictPaused; the caller resumes with SyncContinue or rolls back with
// SyncAbort.
func (s *Service) Sync(base model.BranchName, dryRun, noPush bool) (*SyncResult, error) {
	if err := s.requireNoJournal(); err != nil {
		return nil, err
	}
	if err := s.requireNoRebase(); err != nil {
		return nil, err
	}
	if err := s.requireCleanTree(); err != nil {
		return nil, err
	}

	if base == "" {
		base = s.Trunk()
	}

	original, err := s.Git.CurrentBranch()
	if err != nil {
		return nil, err
	}

	// Bring the base up to date with the remote before planning against it.
	// A dry run must not move anything, the checkout for the fast-forward
	// included.
	if !dryRun {
		if err := s.Git.Fetch(s.cfg.Remote, base); err != nil {
			logs.Warn("Could not fetch %s: %v", base, err)
		} else if base == s.Trunk() {
			if err := s.Git.PullFFOnly(s.cfg.Remote, base); err != nil {
				logs.Warn("Could not fast-forward %s: %v", base, err)
			}
			if err := s.Git.Checkout(original); err != nil {
				logs.Warn("Could not restore branch '%s': %v", original, err)
			}
		}
	}

	plan, err := s.SyncPlan(base)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return &SyncResult{Status: SyncAlreadySynced, Plan: plan}, nil
	}
	if len(plan) == 0 {
		return &SyncResult{Status: SyncAlreadySynced}, nil
	}

	return s.startSync(base, original, plan, noPush)
}

// startSync journals the plan and executes it. The previous undo slot dies
// here: a new sync replaces it as "the last sync".
func (s *Service) startSync(base, original model.BranchName, plan []model.PlanStep, noPush bool) (*SyncResult, error) {
	if err := s.Store.ClearUndo(); err != nil {
		return nil, err
	}

	j := &model.Journal{
		Kind:           model.OpSync,
		ID:             uuid.NewString(),
		StartedAt:      s.now(),
		Base:           base,
		OriginalBranch: original,
		Plan:           plan,
		Backups:        map[model.BranchName]model.Commit{},
		PrevSynced:     map[model.BranchName]model.Commit{},
	}
	for _, step := range plan {
		j.PrevSynced[step.Branch] = s.stack.Get(step.Branch).LastSyncedParentTip
	}
	if err := s.Store.SaveJournal(j); err != nil {
		return nil, err
	}
	s.journal = j

	return s.runSteps(j, noPush)
}

// syncScoped syncs only the subtrees rooted at roots. The merge engine uses
// this to settle the former children of a merged branch onto the new trunk
// tip without touching unrelated parts of the forest.
func (s *Service) syncScoped(base, original model.BranchName, roots []model.BranchName, noPush bool) (*SyncResult, error) {
	var branches []model.BranchName
	for _, r := range roots {
		branches = append(branches, r)
		branches = append(branches, s.stack.Descendants(r)...)
	}
	plan, err := s.planFor(branches)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return &SyncResult{Status: SyncAlreadySynced}, nil
	}
	return s.startSync(base, original, plan, noPush)
}

// runSteps drives the journal forward from its cursor. Every state
// transition persists before advancing, so an ungraceful kill loses at most
// the in-progress step.
func (s *Service) runSteps(j *model.Journal, noPush bool) (*SyncResult, error) {
	for j.Cursor < len(j.Plan) {
		step := j.Plan[j.Cursor]

		if _, backed := j.Backups[step.Branch]; !backed {
			tip, err := s.tip(step.Branch)
			if err != nil {
				return nil, err
			}
			j.Backups[step.Branch] = tip
			if err := s.Store.WriteBackup(j.ID, step.Branch, tip); err != nil {
				return nil, err
			}
			if err := s.Store.SaveJournal(j); err != nil {
				return nil, err
			}
		}

		if err := s.Git.Checkout(step.Branch); err != nil {
			return nil, err
		}
		parentTip, err := s.tip(step.Parent)
		if err != nil {
			return nil, err
		}

		outcome, err := s.rebaseStep(step, parentTip)
		if err != nil {
			// Hard failure, not a conflict: leave the journal in place so
			// abort can restore what was already rebased.
			return nil, err
		}
		if !outcome.Clean {
			if err := s.Store.SaveJournal(j); err != nil {
				return nil, err
			}
			return s.pauseResult(j, step, outcome.Files)
		}

		if err := s.stack.SetLastSynced(step.Branch, parentTip); err != nil {
			return nil, err
		}
		if err := s.saveStack(); err != nil {
			return nil, err
		}
		j.Cursor++
		if err := s.Store.SaveJournal(j); err != nil {
			return nil, err
		}
	}

	return s.finishSync(j, noPush)
}

// rebaseStep replays step.Branch onto parentTip, skipping the rebase when the
// branch is already based there (which makes re-running a sync idempotent).
func (s *Service) rebaseStep(step model.PlanStep, parentTip model.Commit) (rebaseOutcome, error) {
	tip, err := s.tip(step.Branch)
	if err != nil {
		return rebaseOutcome{}, err
	}
	base, err := s.Git.MergeBase(tip, parentTip)
	if err != nil {
		return rebaseOutcome{}, err
	}
	if base == parentTip {
		return rebaseOutcome{Clean: true, NewTip: tip}, nil
	}
	upstream := step.Upstream
	if upstream == "" {
		upstream = base
	}
	out, err := s.Git.RebaseOnto(parentTip, upstream, step.Branch)
	if err != nil {
		return rebaseOutcome{}, err
	}
	return rebaseOutcome{Clean: out.Clean, NewTip: out.NewTip, Files: out.Files}, nil
}

type rebaseOutcome struct {
	Clean  bool
	NewTip model.Commit
	Files  []string
}

func (s *Service) pauseResult(j *model.Journal, step model.PlanStep, files []string) (*SyncResult, error) {
	res := &SyncResult{
		Status:         SyncConflict,
		Rebased:        j.Cursor,
		OpID:           j.ID,
		ConflictBranch: step.Branch,
		ConflictFiles:  files,
	}
	err := errs.New(errs.KindConflictPaused, "sync paused: conflict in branch '%s'", step.Branch).
		WithSuggestion("resolve the conflicts, stage them, then run `rung sync --continue` (or `rung sync --abort`)")
	err.Branch = step.Branch.String()
	err.Files = files
	return res, err
}

func (s *Service) finishSync(j *model.Journal, noPush bool) (*SyncResult, error) {
	if j.OriginalBranch != "" {
		if err := s.Git.Checkout(j.OriginalBranch); err != nil {
			logs.Warn("Could not restore branch '%s': %v", j.OriginalBranch, err)
		}
	}

	undo := &model.UndoRecord{
		OpID:       j.ID,
		FinishedAt: s.now(),
		Branches:   j.Backups,
		PrevSynced: j.PrevSynced,
	}
	if err := s.Store.SaveUndo(undo); err != nil {
		return nil, err
	}
	if err := s.Store.ClearJournal(); err != nil {
		return nil, err
	}
	s.journal = nil

	if !noPush {
		s.pushPlanBranches(j)
	}

	return &SyncResult{Status: SyncComplete, Rebased: len(j.Plan), OpID: j.ID}, nil
}

func (s *Service) pushPlanBranches(j *model.Journal) {
	for _, step := range j.Plan {
		if err := s.Git.Push(s.cfg.Remote, step.Branch, false); err != nil {
			logs.Warn("Could not push %s: %v", step.Branch, err)
		}
	}
}

// SyncContinue resumes a conflict-paused sync after the user resolved and
// staged the conflicting files.
func (s *Service) SyncContinue(noPush bool) (*SyncResult, error) {
	j := s.journal
	if j == nil {
		return nil, errs.New(errs.KindUsage, "no sync in progress to continue")
	}
	step := j.CurrentStep()
	if step == nil {
		return nil, errs.New(errs.KindCorruptState, "journal cursor is past the end of the plan")
	}

	rebasing, err := s.Git.HasRebaseInProgress()
	if err != nil {
		return nil, err
	}
	if !rebasing {
		return nil, errs.New(errs.KindUsage, "no rebase in progress; the conflict appears already resolved").
			WithSuggestion("run `rung sync --abort` if you want to roll back instead")
	}
	if current, err := s.Git.CurrentBranch(); err == nil && current != step.Branch {
		return nil, errs.New(errs.KindUsage,
			"rebase in progress is on '%s' but the paused sync step is '%s'", current, step.Branch)
	}

	outcome, err := s.Git.RebaseContinue()
	if err != nil {
		return nil, err
	}
	if !outcome.Clean {
		return s.pauseResult(j, *step, outcome.Files)
	}

	parentTip, err := s.tip(step.Parent)
	if err != nil {
		return nil, err
	}
	if err := s.stack.SetLastSynced(step.Branch, parentTip); err != nil {
		return nil, err
	}
	if err := s.saveStack(); err != nil {
		return nil, err
	}
	j.Cursor++
	if err := s.Store.SaveJournal(j); err != nil {
		return nil, err
	}

	return s.runSteps(j, noPush)
}

// SyncAbort rolls a paused sync back: abort any in-progress rebase, reset
// every touched branch to its backed-up tip, restore the recorded sync
// points, and clear the journal.
func (s *Service) SyncAbort() error {
	j := s.journal
	if j == nil {
		return errs.New(errs.KindUsage, "no sync in progress to abort")
	}

	rebasing, err := s.Git.HasRebaseInProgress()
	if err != nil {
		return err
	}
	if rebasing {
		if err := s.Git.RebaseAbort(); err != nil {
			logs.Warn("rebase --abort failed: %v", err)
		}
	}

	for branch, tip := range j.Backups {
		if err := s.Git.ResetHard(branch, tip); err != nil {
			return err
		}
	}
	for branch, prev := range j.PrevSynced {
		if s.stack.Has(branch) {
			if err := s.stack.SetLastSynced(branch, prev); err != nil {
				return err
			}
		}
	}
	if err := s.saveStack(); err != nil {
		return err
	}

	if err := s.Store.ClearJournal(); err != nil {
		return err
	}
	if err := s.Store.DeleteBackups(j.ID); err != nil {
		logs.Warn("Could not delete backups: %v", err)
	}
	s.journal = nil

	if j.OriginalBranch != "" {
		if err := s.Git.Checkout(j.OriginalBranch); err != nil {
			logs.Warn("Could not restore branch '%s': %v", j.OriginalBranch, err)
		}
	}
	return nil
}

// Undo restores every branch touched by the last completed sync to its
// pre-sync tip. One slot; it dies with the next sync start.
func (s *Service) Undo() error {
	if s.journal != nil {
		return errs.New(errs.KindUsage, "a sync is in progress").
			WithSuggestion("finish it with `rung sync --continue` or `rung sync --abort` first")
	}
	if err := s.requireCleanTree(); err != nil {
		return err
	}

	rec, err := s.Store.LoadUndo()
	if err != nil {
		return err
	}
	backups, err := s.Store.ReadBackups(rec.OpID)
	if err != nil {
		return err
	}

	var restored []string
	for branch, tip := range backups {
		if err := s.Git.ResetHard(branch, tip); err != nil {
			return err
		}
		restored = append(restored, branch.String())
	}
	for branch, prev := range rec.PrevSynced {
		if s.stack.Has(branch) {
			if err := s.stack.SetLastSynced(branch, prev); err != nil {
				return err
			}
		}
	}
	if err := s.saveStack(); err != nil {
		return err
	}
	if err := s.Store.ClearUndo(); err != nil {
		return err
	}
	logs.Info("Undid last sync; restored: %s", strings.Join(restored, ", "))
	return nil
}
