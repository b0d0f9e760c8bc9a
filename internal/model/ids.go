package model

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/k4r01q/rung/internal/errs"
)

// BranchName is a validated git branch name. Every git invocation takes this
// type, so an unvalidated string can never reach a subprocess argument.
type BranchName string

func (b BranchName) String() string { return string(b) }

// NewBranchName validates name against git's check-ref-format rules plus the
// shell metacharacter set, and rejects anything that could be mistaken for a
// command-line flag.
func NewBranchName(name string) (BranchName, error) {
	if err := validateBranchName(name); err != nil {
		return "", err
	}
	return BranchName(name), nil
}

// MustBranchName is for literals in tests and defaults known to be valid.
func MustBranchName(name string) BranchName {
	b, err := NewBranchName(name)
	if err != nil {
		panic(err)
	}
	return b
}

func invalid(name, reason string) error {
	return errs.New(errs.KindInvalidBranchName, "invalid branch name %q: %s", name, reason)
}

func validateBranchName(name string) error {
	if name == "" {
		return invalid(name, "branch name cannot be empty")
	}
	if len(name) > 255 {
		return invalid(name, "branch name exceeds 255 bytes")
	}
	if name == "@" {
		return invalid(name, "branch name cannot be '@'")
	}
	if name == "HEAD" {
		return invalid(name, "branch name cannot be 'HEAD'")
	}
	if strings.HasPrefix(name, "-") {
		return invalid(name, "branch name cannot start with '-'")
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return invalid(name, "branch name cannot start or end with '.'")
	}
	if strings.HasSuffix(name, ".lock") {
		return invalid(name, "branch name cannot end with '.lock'")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return invalid(name, "branch name cannot start or end with '/'")
	}
	if strings.Contains(name, "..") {
		return invalid(name, "branch name cannot contain '..'")
	}
	if strings.Contains(name, "//") {
		return invalid(name, "branch name cannot contain '//'")
	}
	if strings.Contains(name, "@{") {
		return invalid(name, "branch name cannot contain '@{'")
	}
	if strings.Contains(name, "/.") {
		return invalid(name, "branch name component cannot start with '.'")
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return invalid(name, "branch name cannot contain control characters")
		}
		switch c {
		case ' ', '~', '^', ':', '?', '*', '[':
			return invalid(name, "branch name cannot contain '"+string(c)+"'")
		case '$', ';', '|', '&', '>', '<', '`', '\\', '"', '\'', '(', ')', '{', '}', '!':
			return invalid(name, "branch name cannot contain shell metacharacter '"+string(c)+"'")
		}
	}
	return nil
}

// maxSlugLength bounds generated branch names.
const maxSlugLength = 64

// Slugify converts arbitrary text (usually a commit message) into a branch
// name: first line only, lowercased, runs of non-alphanumerics collapsed to a
// single hyphen, trimmed, truncated to 64 bytes at a word boundary. The result
// may be empty; callers decide whether that is an error.
func Slugify(text string) string {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}

	var sb strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, c := range strings.ToLower(firstLine) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			sb.WriteRune(c)
			lastHyphen = false
		} else if !lastHyphen {
			sb.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.TrimRight(sb.String(), "-")

	if len(slug) <= maxSlugLength {
		return slug
	}

	// Truncate without splitting a rune, preferring the last word boundary
	// inside the limit.
	cut := 0
	lastBoundary := -1
	for i, c := range slug {
		if i+utf8.RuneLen(c) > maxSlugLength {
			break
		}
		if c == '-' {
			lastBoundary = i
		}
		cut = i + utf8.RuneLen(c)
	}
	if lastBoundary > 0 {
		cut = lastBoundary
	}
	return strings.TrimRight(slug[:cut], "-")
}

// BranchNameFromMessage derives a branch name from a commit message.
func BranchNameFromMessage(message string) (BranchName, error) {
	slug := Slugify(message)
	if slug == "" {
		return "", errs.New(errs.KindEmptySlug, "message %q contains no alphanumeric characters", message)
	}
	return NewBranchName(slug)
}

// PrNumber is a pull request number; zero means "no PR".
type PrNumber int

// NewPrNumber rejects non-positive numbers.
func NewPrNumber(n int) (PrNumber, error) {
	if n <= 0 {
		return 0, errs.New(errs.KindUsage, "PR number must be positive, got %d", n)
	}
	return PrNumber(n), nil
}

func (p PrNumber) Valid() bool { return p > 0 }

// Commit is a git object SHA as printed by rev-parse. The zero value means
// "unknown".
type Commit string

func (c Commit) String() string { return string(c) }

// Short returns the abbreviated SHA for display.
func (c Commit) Short() string {
	if len(c) > 8 {
		return string(c[:8])
	}
	return string(c)
}

// NewCommit validates a hex SHA (abbreviated or full).
func NewCommit(sha string) (Commit, error) {
	if len(sha) < 4 || len(sha) > 40 {
		return "", errs.New(errs.KindGitCommandFailed, "malformed commit SHA %q", sha)
	}
	for _, c := range sha {
		if !(('0' <= c && c <= '9') || ('a' <= c && c <= 'f')) {
			return "", errs.New(errs.KindGitCommandFailed, "malformed commit SHA %q", sha)
		}
	}
	return Commit(sha), nil
}
