package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/forge"
	"github.com/k4r01q/rung/internal/model"
	"github.com/k4r01q/rung/internal/render"
)

// mergeFixture builds scenario 5's pre-state: a synced stack A <- B with PRs
// #1 and #2, and a squash-merge of A waiting on the remote trunk.
func mergeFixture(t *testing.T) (*Service, *fakeGit, *fakeForge, model.Commit) {
	t.Helper()
	svc, g, f := newTestService(t)
	linearStack(t, svc, g)

	require.NoError(t, svc.Stack().SetPR("A", 1))
	require.NoError(t, svc.Stack().SetPR("B", 2))
	// Scenario 2 post-state: the stack has been synced, so each branch
	// remembers the parent tip it was last rebased onto.
	require.NoError(t, svc.Stack().SetLastSynced("A", g.branches["main"]))
	require.NoError(t, svc.Stack().SetLastSynced("B", g.branches["A"]))
	require.NoError(t, svc.Store.SaveStack(svc.Stack()))
	f.addPR(1, "A", "main")
	f.addPR(2, "B", "A")

	// The forge squash-merges A: a new commit M lands on the remote trunk.
	m := g.newCommit([]model.Commit{g.branches["main"]}, "A (squashed)")
	g.remotes["main"] = m
	f.mergeSHA = m
	return svc, g, f, m
}

func TestMergeBottom(t *testing.T) {
	svc, g, f, m := mergeFixture(t)
	require.NoError(t, g.Checkout("A"))

	report, err := svc.Merge("squash", false)
	require.NoError(t, err)

	// Forge saw: merge #1, base update #2 -> main, branch delete A.
	assert.Equal(t, []model.PrNumber{1}, f.merged)
	assert.Equal(t, model.BranchName("main"), f.baseUpdates[2])
	assert.Equal(t, []string{"A"}, f.deleted)

	// Local stack is {B: parent=main}; trunk fast-forwarded to M; B rebased
	// onto M.
	stack := svc.Stack()
	assert.False(t, stack.Has("A"))
	require.True(t, stack.Has("B"))
	assert.Equal(t, model.BranchName("main"), stack.Parent("B"))
	assert.Equal(t, m, g.branches["main"])

	base, err := g.MergeBase(g.branches["B"], m)
	require.NoError(t, err)
	assert.Equal(t, m, base)
	assert.Equal(t, m, stack.Get("B").LastSyncedParentTip)

	// B carries only its own commit atop M: exactly one commit of distance.
	n, err := g.CountCommits(m, g.branches["B"])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Local branch A is gone and the stack comment on #2 was refreshed.
	assert.False(t, g.BranchExists("A"))
	require.Len(t, f.comments[2], 1)
	assert.True(t, render.IsStackComment(f.comments[2][0].Body))

	assert.Equal(t, m, report.MergeSHA)
	assert.Equal(t, []model.BranchName{"B"}, report.Reparented)
}

func TestMergeNotAtBottom(t *testing.T) {
	svc, g, f, _ := mergeFixture(t)
	require.NoError(t, g.Checkout("B"))

	before := svc.Stack().Clone()
	_, err := svc.Merge("squash", false)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotAtStackBottom, errs.KindOf(err))
	assert.Contains(t, err.Error(), "A")

	// No forge calls, state unchanged.
	assert.Empty(t, f.merged)
	assert.Empty(t, f.baseUpdates)
	assert.Equal(t, before.TopologicalOrder(), svc.Stack().TopologicalOrder())
	assert.True(t, svc.Stack().Has("A"))
}

func TestMergeRequiresPR(t *testing.T) {
	svc, g, f := func() (*Service, *fakeGit, *fakeForge) {
		svc, g, f := newTestService(t)
		linearStack(t, svc, g)
		return svc, g, f
	}()
	require.NoError(t, g.Checkout("A"))

	_, err := svc.Merge("squash", false)
	require.Error(t, err)
	assert.Equal(t, errs.KindUsage, errs.KindOf(err))
	assert.Empty(t, f.merged)
}

func TestMergeRejectsUnknownMethod(t *testing.T) {
	svc, g, _, _ := mergeFixture(t)
	require.NoError(t, g.Checkout("A"))
	_, err := svc.Merge("fast-forward", false)
	require.Error(t, err)
	assert.Equal(t, errs.KindUsage, errs.KindOf(err))
}

func TestMergeNoDeleteKeepsRemoteBranch(t *testing.T) {
	svc, g, f, _ := mergeFixture(t)
	require.NoError(t, g.Checkout("A"))

	_, err := svc.Merge("squash", true)
	require.NoError(t, err)
	assert.Empty(t, f.deleted)
}

func TestMergeDescendantConflictPauses(t *testing.T) {
	svc, g, f, _ := mergeFixture(t)
	require.NoError(t, g.Checkout("A"))

	// B's own commit conflicts when replayed onto the squashed trunk.
	g.conflictOn[g.branches["B"]] = true

	report, err := svc.Merge("squash", false)
	require.Error(t, err)
	assert.Equal(t, errs.KindDescendantSyncPaused, errs.KindOf(err))
	require.NotNil(t, report)
	assert.True(t, report.SyncPaused)

	// The merge itself happened; the sync journal is waiting.
	assert.Equal(t, []model.PrNumber{1}, f.merged)
	fresh := reload(t, svc)
	require.NotNil(t, fresh.Journal())

	// A is still tracked: cleanup resumes after the conflict is resolved.
	assert.True(t, fresh.Stack().Has("A"))

	// Continuing the sync settles B.
	_, err = fresh.SyncContinue(true)
	require.NoError(t, err)
	base, _ := g.MergeBase(g.branches["B"], g.branches["main"])
	assert.Equal(t, g.branches["main"], base)
}

func TestMergeResumesAfterInterruption(t *testing.T) {
	// A prior run merged the PR on the forge and died before the cleanup.
	// Re-running the merge must not re-merge, just finish the rewiring.
	svc, g, f, m := mergeFixture(t)
	require.NoError(t, g.Checkout("A"))
	f.prs[1].State = forge.PRMerged

	_, err := svc.Merge("squash", false)
	require.NoError(t, err)
	assert.Empty(t, f.merged, "already-merged PR must not be merged again")
	assert.False(t, svc.Stack().Has("A"))
	assert.Equal(t, model.BranchName("main"), svc.Stack().Parent("B"))
	assert.Equal(t, m, g.branches["main"])
}

func TestMergeLeafBranch(t *testing.T) {
	// Merging a bottom branch with no children skips the descendant sync.
	svc, g, f := newTestService(t)
	_, err := svc.Create("solo", "")
	require.NoError(t, err)
	g.commitOn("solo", "s1")
	require.NoError(t, svc.Stack().SetPR("solo", 5))
	require.NoError(t, svc.Store.SaveStack(svc.Stack()))
	f.addPR(5, "solo", "main")
	m := g.newCommit([]model.Commit{g.branches["main"]}, "solo (squashed)")
	g.remotes["main"] = m
	f.mergeSHA = m

	_, err = svc.Merge("squash", false)
	require.NoError(t, err)
	assert.False(t, svc.Stack().Has("solo"))
	assert.Equal(t, m, g.branches["main"])
	assert.Equal(t, model.BranchName("main"), g.current)
}
