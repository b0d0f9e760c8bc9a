package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k4r01q/rung/internal/errs"
)

func TestValidBranchNames(t *testing.T) {
	for _, name := range []string{
		"main", "develop", "feature/auth", "feature/user/login",
		"fix/bug-123", "my-feature", "my_feature", "v1.0.0",
		"release-2024-01", "user@feature",
	} {
		_, err := NewBranchName(name)
		assert.NoError(t, err, "name: %s", name)
	}
}

func TestInvalidBranchNames(t *testing.T) {
	cases := []string{
		"", "@", "HEAD", ".hidden", "branch.", "branch.lock",
		"/branch", "branch/", "feature//auth", "feature/.hidden",
		"branch..name", "../etc/passwd", "branch@{1}", "-rf",
		"branch name", "branch~name", "branch^name", "branch:name",
		"branch?name", "branch*name", "branch[name",
		"branch$(whoami)", "branch;rm -rf", "branch|cat",
		"branch`id`", "branch\\name", "branch\"name", "branch'name",
		"branch\tname", "branch\nname", "branch\x00name",
		strings.Repeat("a", 256),
	}
	for _, name := range cases {
		_, err := NewBranchName(name)
		require.Error(t, err, "name: %q", name)
		assert.Equal(t, errs.KindInvalidBranchName, errs.KindOf(err), "name: %q", name)
	}
}

func TestSlugifyBasic(t *testing.T) {
	assert.Equal(t, "feat-add-authentication", Slugify("feat: add authentication"))
	assert.Equal(t, "fix-login-bug", Slugify("Fix login bug"))
	assert.Equal(t, "feat-auth-add-oauth-support", Slugify("feat(auth): add OAuth support"))
	assert.Equal(t, "fix-bug-123", Slugify("fix: bug #123"))
}

func TestSlugifyFirstLineOnly(t *testing.T) {
	assert.Equal(t, "feat-add-auth", Slugify("feat: add auth\n\nlonger description"))
}

func TestSlugifyEmpty(t *testing.T) {
	assert.Equal(t, "", Slugify(""))
	assert.Equal(t, "", Slugify("   "))
	assert.Equal(t, "", Slugify("🔥🚀"))
}

func TestSlugifyTruncation(t *testing.T) {
	long := "feat implement a very long feature name that exceeds the maximum length allowed by the slug rules"
	slug := Slugify(long)
	assert.LessOrEqual(t, len(slug), 64)
	assert.False(t, strings.HasSuffix(slug, "-"))

	word := Slugify(strings.Repeat("a", 100))
	assert.Equal(t, 64, len(word))
}

func TestSlugifyIdempotent(t *testing.T) {
	for _, input := range []string{
		"feat: add authentication",
		"Fix login bug",
		strings.Repeat("word-", 30),
		"über cool änderung",
	} {
		once := Slugify(input)
		if once == "" {
			continue
		}
		assert.Equal(t, once, Slugify(once), "input: %q", input)
	}
}

func TestBranchNameFromMessage(t *testing.T) {
	name, err := BranchNameFromMessage("feat: add authentication")
	require.NoError(t, err)
	assert.Equal(t, BranchName("feat-add-authentication"), name)

	_, err = BranchNameFromMessage("🔥✨")
	require.Error(t, err)
	assert.Equal(t, errs.KindEmptySlug, errs.KindOf(err))
}

func TestPrNumber(t *testing.T) {
	n, err := NewPrNumber(7)
	require.NoError(t, err)
	assert.True(t, n.Valid())

	_, err = NewPrNumber(0)
	assert.Error(t, err)
	_, err = NewPrNumber(-3)
	assert.Error(t, err)
	assert.False(t, PrNumber(0).Valid())
}

func TestNewCommit(t *testing.T) {
	_, err := NewCommit("0123456789abcdef0123456789abcdef01234567")
	assert.NoError(t, err)
	_, err = NewCommit("abc")
	assert.Error(t, err)
	_, err = NewCommit("xyz1234")
	assert.Error(t, err)
}
