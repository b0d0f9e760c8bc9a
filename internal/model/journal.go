package model

import "time"

// OpKind names the multi-step operation a journal belongs to.
type OpKind string

// OpSync is the only suspendable operation today.
const OpSync OpKind = "sync"

// PlanStep is one rebase in a sync plan: replay the commits of Branch since
// Upstream onto the current tip of Parent.
type PlanStep struct {
	Branch   BranchName
	Parent   BranchName
	OldTip   Commit
	Upstream Commit
}

// Journal is the durable record of a suspended sync. While it exists on disk
// it blocks new stack-mutating operations; `sync --continue` resumes from
// Cursor and `sync --abort` rolls every touched branch back to Backups.
type Journal struct {
	Kind           OpKind
	ID             string
	StartedAt      time.Time
	Base           BranchName
	OriginalBranch BranchName
	Plan           []PlanStep
	Cursor         int
	Backups        map[BranchName]Commit

	// Pre-sync last_synced_parent_tip values, kept so undo can restore them.
	PrevSynced map[BranchName]Commit
}

// CurrentStep returns the step the cursor points at, or nil when the plan is
// exhausted.
func (j *Journal) CurrentStep() *PlanStep {
	if j.Cursor < 0 || j.Cursor >= len(j.Plan) {
		return nil
	}
	return &j.Plan[j.Cursor]
}

// UndoRecord is the single undo slot: written when a sync completes, consumed
// by `rung undo`, discarded when the next sync begins.
type UndoRecord struct {
	OpID       string
	FinishedAt time.Time
	Branches   map[BranchName]Commit
	PrevSynced map[BranchName]Commit
}
