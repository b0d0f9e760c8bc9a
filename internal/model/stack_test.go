package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k4r01q/rung/internal/errs"
)

func testStack(t *testing.T) *Stack {
	t.Helper()
	s := NewStack("main")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add("feat-a", "main", base))
	require.NoError(t, s.Add("feat-b", "feat-a", base.Add(time.Minute)))
	require.NoError(t, s.Add("feat-c", "feat-a", base.Add(2*time.Minute)))
	require.NoError(t, s.Add("other", "main", base.Add(3*time.Minute)))
	return s
}

func TestTopologicalOrder(t *testing.T) {
	s := testStack(t)
	order := s.TopologicalOrder()
	assert.Equal(t, []BranchName{"feat-a", "feat-b", "feat-c", "other"}, order)

	// Every ancestor appears before its descendant.
	pos := map[BranchName]int{}
	for i, n := range order {
		pos[n] = i
	}
	for _, n := range order {
		for _, anc := range s.AncestorsToTrunk(n) {
			assert.Less(t, pos[anc], pos[n])
		}
	}
}

func TestChildrenAndDescendants(t *testing.T) {
	s := testStack(t)
	assert.Equal(t, []BranchName{"feat-b", "feat-c"}, s.Children("feat-a"))
	assert.Equal(t, []BranchName{"feat-a", "other"}, s.Children("main"))
	assert.Equal(t, []BranchName{"feat-b", "feat-c"}, s.Descendants("feat-a"))
	assert.Empty(t, s.Descendants("feat-b"))
}

func TestAncestorsToTrunk(t *testing.T) {
	s := testStack(t)
	assert.Equal(t, []BranchName{"feat-a"}, s.AncestorsToTrunk("feat-b"))
	assert.Empty(t, s.AncestorsToTrunk("feat-a"))
}

func TestWouldCreateCycle(t *testing.T) {
	s := testStack(t)
	assert.True(t, s.WouldCreateCycle("feat-a", "feat-a"))
	assert.True(t, s.WouldCreateCycle("feat-a", "feat-b"))
	assert.True(t, s.WouldCreateCycle("feat-a", "feat-c"))
	assert.False(t, s.WouldCreateCycle("feat-b", "feat-a"))
	assert.False(t, s.WouldCreateCycle("feat-b", "other"))
}

func TestSetParentRejectsCycle(t *testing.T) {
	s := testStack(t)
	err := s.SetParent("feat-a", "feat-b")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
	// Nothing committed.
	assert.Equal(t, BranchName("main"), s.Parent("feat-a"))
}

func TestSetParentKeepsSyncPoint(t *testing.T) {
	s := testStack(t)
	require.NoError(t, s.SetLastSynced("feat-b", "0000000000000000000000000000000000000001"))
	require.NoError(t, s.SetParent("feat-b", "main"))
	assert.Equal(t, Commit("0000000000000000000000000000000000000001"), s.Get("feat-b").LastSyncedParentTip)
}

func TestAddRejectsUnknownParent(t *testing.T) {
	s := testStack(t)
	err := s.Add("orphan", "nope", time.Now())
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
	assert.False(t, s.Has("orphan"))
}

func TestAddRejectsDuplicate(t *testing.T) {
	s := testStack(t)
	err := s.Add("feat-a", "main", time.Now())
	assert.Error(t, err)
}

func TestRemoveRequiresNoChildren(t *testing.T) {
	s := testStack(t)
	err := s.Remove("feat-a")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))

	require.NoError(t, s.Remove("feat-b"))
	require.NoError(t, s.Remove("feat-c"))
	require.NoError(t, s.Remove("feat-a"))
	assert.Equal(t, 1, s.Len())
}

func TestUniquePRNumbers(t *testing.T) {
	s := testStack(t)
	require.NoError(t, s.SetPR("feat-a", 10))
	err := s.SetPR("feat-b", 10)
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
	assert.False(t, s.Get("feat-b").PR.Valid())
}

func TestRename(t *testing.T) {
	s := testStack(t)
	require.NoError(t, s.Rename("feat-a", "feat-a2"))
	assert.False(t, s.Has("feat-a"))
	assert.Equal(t, BranchName("feat-a2"), s.Parent("feat-b"))
	assert.Equal(t, BranchName("feat-a2"), s.Parent("feat-c"))
	require.NoError(t, s.Validate())
}

func TestMainPathChild(t *testing.T) {
	s := testStack(t)

	// A leaf has no child to follow.
	child, err := s.MainPathChild("feat-b")
	assert.Error(t, err) // no children

	// feat-a has two children with distinct creation times; newest wins.
	child, err = s.MainPathChild("feat-a")
	require.NoError(t, err)
	assert.Equal(t, BranchName("feat-c"), child)

	// A creation-time tie is ambiguous.
	tie := NewStack("main")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tie.Add("p", "main", at))
	require.NoError(t, tie.Add("x", "p", at))
	require.NoError(t, tie.Add("y", "p", at))
	_, err = tie.MainPathChild("p")
	require.Error(t, err)
	assert.Equal(t, errs.KindAmbiguousChild, errs.KindOf(err))
}

func TestValidateDetectsCycle(t *testing.T) {
	s := testStack(t)
	// Corrupt the map directly to simulate on-disk tampering.
	s.Branches["feat-a"].Parent = "feat-b"
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
}

func TestValidateTrunkNotTracked(t *testing.T) {
	s := NewStack("main")
	s.Branches["main"] = &Branch{Name: "main", Parent: "main"}
	assert.Error(t, s.Validate())
}
