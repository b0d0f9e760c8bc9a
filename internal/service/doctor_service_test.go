package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k4r01q/rung/internal/forge"
)

func findIssue(report *DoctorReport, fragment string) *Issue {
	for i := range report.Issues {
		if strings.Contains(report.Issues[i].Message, fragment) {
			return &report.Issues[i]
		}
	}
	return nil
}

func TestDoctorHealthyStack(t *testing.T) {
	svc, g, _ := newTestService(t)
	linearStack(t, svc, g)

	report := svc.Doctor()
	assert.True(t, report.Healthy)
	assert.Zero(t, report.Errors)
	assert.Zero(t, report.Warnings)
}

func TestDoctorFlagsDirtyTreeAndMissingBranch(t *testing.T) {
	svc, g, _ := newTestService(t)
	linearStack(t, svc, g)
	g.dirty = true
	delete(g.branches, "B")

	report := svc.Doctor()
	assert.False(t, report.Healthy)
	require.NotNil(t, findIssue(report, "uncommitted changes"))
	missing := findIssue(report, "missing from git")
	require.NotNil(t, missing)
	assert.Equal(t, SeverityWarning, missing.Severity)
}

func TestDoctorFlagsBranchesBehind(t *testing.T) {
	svc, g, _ := newTestService(t)
	linearStack(t, svc, g)
	g.commitOn("main", "m1")

	report := svc.Doctor()
	behind := findIssue(report, "behind their parent")
	require.NotNil(t, behind)
	assert.Equal(t, SeverityWarning, behind.Severity)
	assert.Contains(t, behind.Suggestion, "rung sync")
}

func TestDoctorFlagsSuspendedSync(t *testing.T) {
	svc, g, _ := newTestService(t)
	c1, _ := linearStack(t, svc, g)
	g.commitOn("main", "c0'")
	require.NoError(t, g.Checkout("B"))
	g.conflictOn[c1] = true
	_, err := svc.Sync("", false, true)
	require.Error(t, err)

	paused := reload(t, svc)
	report := paused.Doctor()
	require.NotNil(t, findIssue(report, "suspended"))
	require.NotNil(t, findIssue(report, "rebase is in progress"))
}

func TestDoctorFlagsMergedAndClosedPRs(t *testing.T) {
	svc, g, f := newTestService(t)
	linearStack(t, svc, g)
	require.NoError(t, svc.Stack().SetPR("A", 1))
	require.NoError(t, svc.Stack().SetPR("B", 2))
	f.addPR(1, "A", "main")
	f.addPR(2, "B", "A")
	f.prs[1].State = forge.PRMerged
	f.prs[2].State = forge.PRClosed

	report := svc.Doctor()
	merged := findIssue(report, "is merged")
	require.NotNil(t, merged)
	assert.Equal(t, SeverityError, merged.Severity)
	closed := findIssue(report, "is closed")
	require.NotNil(t, closed)
	assert.Equal(t, SeverityWarning, closed.Severity)
}

func TestDoctorWithoutForgeIsInfoOnly(t *testing.T) {
	svc, g, _ := newTestService(t)
	linearStack(t, svc, g)
	svc.Forge = nil

	report := svc.Doctor()
	info := findIssue(report, "forge not reachable")
	require.NotNil(t, info)
	assert.Equal(t, SeverityInfo, info.Severity)
	assert.True(t, report.Healthy, "an info finding alone keeps the report healthy")
}
