package model

import (
	"sort"
	"time"

	"github.com/k4r01q/rung/internal/errs"
)

// Branch is one tracked branch in the stack. The trunk is implicit and never
// has a node; a branch whose Parent equals the stack's trunk sits at the
// bottom of its chain.
type Branch struct {
	Name                BranchName
	Parent              BranchName
	PR                  PrNumber
	LastSyncedParentTip Commit
	CreatedAt           time.Time

	// Cached PR snapshot from the forge. Informational only; never an input
	// to correctness.
	PRState     string
	PRURL       string
	PRFetchedAt time.Time
}

// Stack is the forest of tracked branches, keyed by name, rooted at the trunk.
type Stack struct {
	Trunk    BranchName
	Branches map[BranchName]*Branch
}

// NewStack returns an empty stack rooted at trunk.
func NewStack(trunk BranchName) *Stack {
	return &Stack{Trunk: trunk, Branches: map[BranchName]*Branch{}}
}

// Get returns the node for name, or nil.
func (s *Stack) Get(name BranchName) *Branch {
	return s.Branches[name]
}

// Has reports whether name is tracked.
func (s *Stack) Has(name BranchName) bool {
	_, ok := s.Branches[name]
	return ok
}

// Len returns the number of tracked branches.
func (s *Stack) Len() int { return len(s.Branches) }

// Parent returns the parent of name ("" if name is untracked). For bottom
// branches the parent is the trunk itself.
func (s *Stack) Parent(name BranchName) BranchName {
	if b := s.Branches[name]; b != nil {
		return b.Parent
	}
	return ""
}

// Children returns the direct children of name (or of the trunk), sorted by
// name so iteration order is reproducible.
func (s *Stack) Children(name BranchName) []BranchName {
	var out []BranchName
	for _, b := range s.Branches {
		if b.Parent == name {
			out = append(out, b.Name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descendants returns every branch below name, parents before children,
// siblings in name order.
func (s *Stack) Descendants(name BranchName) []BranchName {
	var out []BranchName
	var walk func(BranchName)
	walk = func(n BranchName) {
		for _, c := range s.Children(n) {
			out = append(out, c)
			walk(c)
		}
	}
	walk(name)
	return out
}

// AncestorsToTrunk returns the chain of tracked ancestors of name, nearest
// first, ending just before the trunk.
func (s *Stack) AncestorsToTrunk(name BranchName) []BranchName {
	var out []BranchName
	cur := s.Branches[name]
	for cur != nil && cur.Parent != s.Trunk {
		out = append(out, cur.Parent)
		cur = s.Branches[cur.Parent]
	}
	return out
}

// TopologicalOrder returns every tracked branch, trunk-rooted pre-order:
// parents always before children, siblings by name ascending.
func (s *Stack) TopologicalOrder() []BranchName {
	return s.Descendants(s.Trunk)
}

// WouldCreateCycle reports whether re-parenting child onto newParent would
// break the forest: true when child is an ancestor of newParent or the two
// are the same branch.
func (s *Stack) WouldCreateCycle(child, newParent BranchName) bool {
	if child == newParent {
		return true
	}
	cur := newParent
	for {
		b := s.Branches[cur]
		if b == nil {
			return false
		}
		if b.Parent == child {
			return true
		}
		cur = b.Parent
	}
}

// MainPathChild returns the child of name to follow for `nxt`: the single
// child, or the most recently created one when that is unambiguous.
func (s *Stack) MainPathChild(name BranchName) (BranchName, error) {
	children := s.Children(name)
	switch len(children) {
	case 0:
		return "", errs.New(errs.KindMissingBranch, "'%s' has no children in the stack", name)
	case 1:
		return children[0], nil
	}
	newest := children[0]
	ambiguous := false
	for _, c := range children[1:] {
		ct := s.Branches[c].CreatedAt
		nt := s.Branches[newest].CreatedAt
		if ct.After(nt) {
			newest = c
			ambiguous = false
		} else if ct.Equal(nt) {
			ambiguous = true
		}
	}
	if ambiguous {
		return "", errs.New(errs.KindAmbiguousChild, "'%s' has multiple children: %v", name, children).
			WithSuggestion("checkout the one you want with `git checkout <branch>`")
	}
	return newest, nil
}

// Validate checks the stack invariants: every parent resolves to the trunk or
// a tracked node, the parent relation is a forest (no cycles), and PR numbers
// are unique.
func (s *Stack) Validate() error {
	if s.Trunk == "" {
		return errs.New(errs.KindInvariantViolation, "stack has no trunk")
	}
	if s.Has(s.Trunk) {
		return errs.New(errs.KindInvariantViolation, "trunk '%s' must not be a tracked branch", s.Trunk)
	}
	prs := map[PrNumber]BranchName{}
	for name, b := range s.Branches {
		if name != b.Name {
			return errs.New(errs.KindInvariantViolation, "branch '%s' stored under key '%s'", b.Name, name)
		}
		if b.Parent != s.Trunk && !s.Has(b.Parent) {
			return errs.New(errs.KindInvariantViolation, "branch '%s' has unknown parent '%s'", name, b.Parent)
		}
		if b.PR.Valid() {
			if other, dup := prs[b.PR]; dup {
				return errs.New(errs.KindInvariantViolation, "PR #%d tracked by both '%s' and '%s'", b.PR, other, name)
			}
			prs[b.PR] = name
		}
	}
	// Every branch must reach the trunk without revisiting a node.
	for name := range s.Branches {
		seen := map[BranchName]bool{}
		cur := name
		for cur != s.Trunk {
			if seen[cur] {
				return errs.New(errs.KindInvariantViolation, "cycle detected through branch '%s'", cur)
			}
			seen[cur] = true
			b := s.Branches[cur]
			if b == nil {
				return errs.New(errs.KindInvariantViolation, "branch '%s' does not reach the trunk", name)
			}
			cur = b.Parent
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	out := NewStack(s.Trunk)
	for name, b := range s.Branches {
		cp := *b
		out.Branches[name] = &cp
	}
	return out
}

// mutate applies fn to a copy, validates the result, and commits it only if
// the invariants still hold.
func (s *Stack) mutate(fn func(*Stack) error) error {
	next := s.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.Trunk = next.Trunk
	s.Branches = next.Branches
	return nil
}

// Add begins tracking name with the given parent.
func (s *Stack) Add(name, parent BranchName, createdAt time.Time) error {
	return s.mutate(func(next *Stack) error {
		if next.Has(name) {
			return errs.New(errs.KindInvariantViolation, "branch '%s' is already tracked", name)
		}
		next.Branches[name] = &Branch{Name: name, Parent: parent, CreatedAt: createdAt}
		return nil
	})
}

// SetParent re-parents name onto newParent.
func (s *Stack) SetParent(name, newParent BranchName) error {
	return s.mutate(func(next *Stack) error {
		b := next.Branches[name]
		if b == nil {
			return errs.New(errs.KindMissingBranch, "branch '%s' is not tracked", name)
		}
		if next.WouldCreateCycle(name, newParent) {
			return errs.New(errs.KindInvariantViolation, "re-parenting '%s' onto '%s' would create a cycle", name, newParent)
		}
		b.Parent = newParent
		// LastSyncedParentTip is kept on purpose: it still marks where this
		// branch's own commits begin, which is what the next rebase replays.
		return nil
	})
}

// SetPR records the PR number for name.
func (s *Stack) SetPR(name BranchName, pr PrNumber) error {
	return s.mutate(func(next *Stack) error {
		b := next.Branches[name]
		if b == nil {
			return errs.New(errs.KindMissingBranch, "branch '%s' is not tracked", name)
		}
		b.PR = pr
		return nil
	})
}

// SetLastSynced records the parent tip name was last rebased onto.
func (s *Stack) SetLastSynced(name BranchName, parentTip Commit) error {
	return s.mutate(func(next *Stack) error {
		b := next.Branches[name]
		if b == nil {
			return errs.New(errs.KindMissingBranch, "branch '%s' is not tracked", name)
		}
		b.LastSyncedParentTip = parentTip
		return nil
	})
}

// Remove stops tracking name. Callers must re-parent children first.
func (s *Stack) Remove(name BranchName) error {
	return s.mutate(func(next *Stack) error {
		if !next.Has(name) {
			return errs.New(errs.KindMissingBranch, "branch '%s' is not tracked", name)
		}
		if kids := next.Children(name); len(kids) > 0 {
			return errs.New(errs.KindInvariantViolation, "branch '%s' still has children %v", name, kids)
		}
		delete(next.Branches, name)
		return nil
	})
}

// Rename changes a branch's name, updating child references.
func (s *Stack) Rename(oldName, newName BranchName) error {
	return s.mutate(func(next *Stack) error {
		b := next.Branches[oldName]
		if b == nil {
			return errs.New(errs.KindMissingBranch, "branch '%s' is not tracked", oldName)
		}
		if next.Has(newName) {
			return errs.New(errs.KindInvariantViolation, "branch '%s' is already tracked", newName)
		}
		b.Name = newName
		next.Branches[newName] = b
		delete(next.Branches, oldName)
		for _, other := range next.Branches {
			if other.Parent == oldName {
				other.Parent = newName
			}
		}
		return nil
	})
}
