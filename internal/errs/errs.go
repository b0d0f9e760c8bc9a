package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error so the command layer can map it to an exit code
// and tests can assert on failure modes without string matching.
type Kind string

const (
	// Input / validation.
	KindInvalidBranchName Kind = "invalid_branch_name"
	KindEmptySlug         Kind = "empty_slug"
	KindAmbiguousChild    Kind = "ambiguous_child"
	KindNotAtStackBottom  Kind = "not_at_stack_bottom"
	KindInvariantViolation Kind = "invariant_violation"
	KindUsage             Kind = "usage"

	// State.
	KindNotInitialized          Kind = "not_initialized"
	KindAlreadyInitialized      Kind = "already_initialized"
	KindCorruptState            Kind = "corrupt_state"
	KindUnsupportedStateVersion Kind = "unsupported_state_version"
	KindBusy                    Kind = "busy"
	KindNothingToUndo           Kind = "nothing_to_undo"

	// Workspace.
	KindDirtyWorkingTree Kind = "dirty_working_tree"
	KindDetachedHead     Kind = "detached_head"
	KindRebaseInProgress Kind = "rebase_in_progress"
	KindMissingBranch    Kind = "missing_branch"

	// Operation.
	KindConflictPaused       Kind = "conflict_paused"
	KindDescendantSyncPaused Kind = "descendant_sync_paused"

	// External.
	KindGitCommandFailed Kind = "git_command_failed"
	KindForgeError       Kind = "forge_error"
	KindNotAuthenticated Kind = "not_authenticated"
)

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string

	// Set for KindConflictPaused: where the sync stopped.
	Branch string
	Files  []string

	// Set for KindForgeError.
	Status int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// WithSuggestion adds an actionable hint printed under the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// KindOf returns the kind of err, or the empty kind for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether the outermost typed error in err's chain has the given
// kind. Typed errors wrapped inside it are not consulted.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Get returns the typed error in err's chain, if any.
func Get(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

// Exit codes for the CLI contract.
const (
	ExitOK       = 0
	ExitGeneric  = 1
	ExitUsage    = 2
	ExitConflict = 3
	ExitBusy     = 4
	ExitCorrupt  = 5
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindUsage, KindInvalidBranchName, KindEmptySlug, KindAmbiguousChild, KindNotAtStackBottom:
		return ExitUsage
	case KindConflictPaused:
		return ExitConflict
	case KindBusy:
		return ExitBusy
	case KindCorruptState, KindUnsupportedStateVersion:
		return ExitCorrupt
	default:
		return ExitGeneric
	}
}
