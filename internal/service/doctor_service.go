package service

import (
	"fmt"

	"github.com/k4r01q/rung/internal/forge"
)

// Severity of a doctor finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one diagnostic finding.
type Issue struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// DoctorReport is the full diagnosis.
type DoctorReport struct {
	Healthy  bool    `json:"healthy"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
	Issues   []Issue `json:"issues"`
}

func (r *DoctorReport) add(sev Severity, message, suggestion string) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Message: message, Suggestion: suggestion})
	switch sev {
	case SeverityError:
		r.Errors++
	case SeverityWarning:
		r.Warnings++
	}
}

// Doctor runs read-only integrity checks across the model, the repository,
// and (when reachable) the forge.
func (s *Service) Doctor() *DoctorReport {
	report := &DoctorReport{}

	s.checkWorkspace(report)
	s.checkStackIntegrity(report)
	s.checkSyncState(report)
	s.checkForge(report)

	report.Healthy = report.Errors == 0 && report.Warnings == 0
	return report
}

func (s *Service) checkWorkspace(r *DoctorReport) {
	if clean, err := s.Git.IsWorkingTreeClean(); err == nil && !clean {
		r.add(SeverityWarning, "working tree has uncommitted changes",
			"commit or stash them before running rung commands")
	}
	if detached, err := s.Git.IsDetachedHead(); err == nil && detached {
		r.add(SeverityError, "HEAD is detached (not on a branch)",
			"checkout a branch with `git checkout <branch>`")
	}
	if rebasing, err := s.Git.HasRebaseInProgress(); err == nil && rebasing {
		r.add(SeverityError, "a git rebase is in progress",
			"finish or abort it before running rung commands")
	}
	if s.journal != nil {
		r.add(SeverityWarning, "a sync operation is suspended",
			"run `rung sync --continue` or `rung sync --abort`")
	}
}

func (s *Service) checkStackIntegrity(r *DoctorReport) {
	// The load path validates on the way in; re-check so doctor also covers
	// in-memory corruption.
	if err := s.stack.Validate(); err != nil {
		r.add(SeverityError, fmt.Sprintf("stack invariants violated: %v", err), "")
		return
	}

	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)
		if !s.Git.BranchExists(name) {
			r.add(SeverityWarning, fmt.Sprintf("branch '%s' is tracked but missing from git", name),
				"delete it from the stack or recreate the branch")
		}
		if node.Parent != s.Trunk() && !s.stack.Has(node.Parent) {
			r.add(SeverityError, fmt.Sprintf("branch '%s' has unknown parent '%s'", name, node.Parent), "")
		}
	}
	if !s.Git.BranchExists(s.Trunk()) {
		r.add(SeverityError, fmt.Sprintf("trunk '%s' does not exist locally", s.Trunk()),
			"fetch it or fix the trunk in config.json")
	}
}

func (s *Service) checkSyncState(r *DoctorReport) {
	behind := 0
	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)
		if !s.Git.BranchExists(name) || !s.Git.BranchExists(node.Parent) {
			continue
		}
		tip, err := s.tip(name)
		if err != nil {
			continue
		}
		parentTip, err := s.tip(node.Parent)
		if err != nil {
			continue
		}
		base, err := s.Git.MergeBase(tip, parentTip)
		if err != nil {
			continue
		}
		if base != parentTip {
			behind++
		}
	}
	if behind > 0 {
		r.add(SeverityWarning, fmt.Sprintf("%d branch(es) are behind their parent", behind),
			"run `rung sync` to rebase them")
	}
}

func (s *Service) checkForge(r *DoctorReport) {
	if s.Forge == nil {
		r.add(SeverityInfo, "forge not reachable; skipping PR checks",
			"set GITHUB_TOKEN to enable them")
		return
	}
	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)
		if !node.PR.Valid() {
			continue
		}
		pr, err := s.Forge.GetPR(node.PR)
		if err != nil {
			r.add(SeverityWarning, fmt.Sprintf("could not fetch PR #%d for '%s'", node.PR, name), "")
			continue
		}
		switch pr.State {
		case forge.PRMerged:
			r.add(SeverityError, fmt.Sprintf("PR #%d for '%s' is merged but the branch is still tracked", node.PR, name),
				"run `rung merge` from that branch, or untrack it")
		case forge.PRClosed:
			r.add(SeverityWarning, fmt.Sprintf("PR #%d for '%s' is closed", node.PR, name),
				"reopen it or untrack the branch")
		}
	}
}
