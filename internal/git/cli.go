package git

import (
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
)

// CLI runs git as a subprocess in a fixed working directory.
type CLI struct {
	dir string
}

// NewCLI returns a driver operating in dir ("" means the process cwd).
func NewCLI(dir string) *CLI {
	return &CLI{dir: dir}
}

// IsRepo reports whether the working directory is inside a git repository.
func (c *CLI) IsRepo() bool {
	_, err := c.run("rev-parse", "--git-dir")
	return err == nil
}

func (c *CLI) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		logs.Debug("git %v failed: %v\n%s", args, err, string(out))
		return strings.TrimSpace(string(out)), errs.Wrap(err, errs.KindGitCommandFailed,
			"git %s failed: %s", args[0], strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *CLI) CurrentBranch() (model.BranchName, error) {
	out, err := c.run("symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", errs.New(errs.KindDetachedHead, "HEAD is detached (not on a branch)").
			WithSuggestion("checkout a branch with `git checkout <branch>`")
	}
	return model.NewBranchName(out)
}

func (c *CLI) IsDetachedHead() (bool, error) {
	_, err := c.run("symbolic-ref", "--quiet", "HEAD")
	return err != nil, nil
}

func (c *CLI) IsWorkingTreeClean() (bool, error) {
	out, err := c.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

func (c *CLI) HasRebaseInProgress() (bool, error) {
	gitDir, err := c.GitDir()
	if err != nil {
		return false, err
	}
	for _, marker := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(gitDir + string(os.PathSeparator) + marker); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (c *CLI) BranchExists(branch model.BranchName) bool {
	_, err := c.run("show-ref", "--verify", "--quiet", "refs/heads/"+branch.String())
	return err == nil
}

func (c *CLI) Tip(branch model.BranchName) (model.Commit, error) {
	out, err := c.run("rev-parse", "refs/heads/"+branch.String())
	if err != nil {
		return "", errs.New(errs.KindMissingBranch, "branch '%s' does not exist locally", branch)
	}
	return model.NewCommit(out)
}

func (c *CLI) RemoteTip(remote string, branch model.BranchName) (model.Commit, error) {
	out, err := c.run("rev-parse", "refs/remotes/"+remote+"/"+branch.String())
	if err != nil {
		return "", errs.New(errs.KindMissingBranch, "branch '%s/%s' is not known locally", remote, branch)
	}
	return model.NewCommit(out)
}

func (c *CLI) MergeBase(a, b model.Commit) (model.Commit, error) {
	out, err := c.run("merge-base", a.String(), b.String())
	if err != nil {
		return "", err
	}
	return model.NewCommit(out)
}

func (c *CLI) CountCommits(from, to model.Commit) (int, error) {
	out, err := c.run("rev-list", "--count", from.String()+".."+to.String())
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, errs.Wrap(err, errs.KindGitCommandFailed, "unexpected rev-list output %q", out)
	}
	return n, nil
}

func (c *CLI) LogRange(from, to model.Commit) ([]LogEntry, error) {
	out, err := c.run("log", "--format=%H\x1f%s\x1f%an", from.String()+".."+to.String())
	if err != nil {
		return nil, err
	}
	var entries []LogEntry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		sha, err := model.NewCommit(parts[0])
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{Commit: sha, Subject: parts[1], Author: parts[2]})
	}
	return entries, nil
}

func (c *CLI) Checkout(branch model.BranchName) error {
	_, err := c.run("checkout", "--quiet", branch.String())
	return err
}

func (c *CLI) CreateBranch(name model.BranchName) error {
	_, err := c.run("branch", "--", name.String())
	return err
}

func (c *CLI) DeleteBranch(name model.BranchName, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.run("branch", flag, "--", name.String())
	return err
}

func (c *CLI) Fetch(remote string, branch model.BranchName) error {
	_, err := c.run("fetch", "--quiet", remote, branch.String())
	return err
}

func (c *CLI) Push(remote string, branch model.BranchName, force bool) error {
	args := []string{"push", "--quiet"}
	if force {
		args = append(args, "--force")
	} else {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch.String()+":"+branch.String())
	_, err := c.run(args...)
	return err
}

func (c *CLI) PullFFOnly(remote string, branch model.BranchName) error {
	if err := c.Checkout(branch); err != nil {
		return err
	}
	_, err := c.run("merge", "--ff-only", "refs/remotes/"+remote+"/"+branch.String())
	return err
}

func (c *CLI) RebaseOnto(newBase model.Commit, upstream model.Commit, branch model.BranchName) (RebaseOutcome, error) {
	_, err := c.run("rebase", "--onto", newBase.String(), upstream.String(), branch.String())
	if err != nil {
		return c.rebaseFailure(err)
	}
	tip, err := c.Tip(branch)
	if err != nil {
		return RebaseOutcome{}, err
	}
	return RebaseOutcome{Clean: true, NewTip: tip}, nil
}

func (c *CLI) RebaseContinue() (RebaseOutcome, error) {
	// GIT_EDITOR=true keeps git from opening an editor for the replayed
	// commit message.
	cmd := exec.Command("git", "rebase", "--continue")
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true")
	out, err := cmd.CombinedOutput()
	if err != nil {
		wrapped := errs.Wrap(err, errs.KindGitCommandFailed, "git rebase --continue failed: %s", strings.TrimSpace(string(out)))
		return c.rebaseFailure(wrapped)
	}
	branch, err := c.CurrentBranch()
	if err != nil {
		return RebaseOutcome{}, err
	}
	tip, err := c.Tip(branch)
	if err != nil {
		return RebaseOutcome{}, err
	}
	return RebaseOutcome{Clean: true, NewTip: tip}, nil
}

// rebaseFailure distinguishes a paused conflicted rebase from a hard failure.
func (c *CLI) rebaseFailure(cause error) (RebaseOutcome, error) {
	rebasing, err := c.HasRebaseInProgress()
	if err != nil {
		return RebaseOutcome{}, err
	}
	if !rebasing {
		return RebaseOutcome{}, cause
	}
	files, err := c.conflictingFiles()
	if err != nil {
		return RebaseOutcome{}, err
	}
	return RebaseOutcome{Clean: false, Files: files}, nil
}

func (c *CLI) conflictingFiles() ([]string, error) {
	out, err := c.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (c *CLI) RebaseAbort() error {
	_, err := c.run("rebase", "--abort")
	return err
}

func (c *CLI) StageAll() error {
	_, err := c.run("add", "--all")
	return err
}

func (c *CLI) Commit(message string) (model.Commit, error) {
	if _, err := c.run("commit", "--quiet", "-m", message); err != nil {
		return "", err
	}
	out, err := c.run("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return model.NewCommit(out)
}

func (c *CLI) ResetHard(branch model.BranchName, target model.Commit) error {
	current, err := c.CurrentBranch()
	if err == nil && current == branch {
		_, err := c.run("reset", "--hard", "--quiet", target.String())
		return err
	}
	// Move the ref directly when the branch is not checked out.
	_, err = c.run("update-ref", "refs/heads/"+branch.String(), target.String())
	return err
}

func (c *CLI) RemoteURL(remote string) (string, error) {
	return c.run("remote", "get-url", remote)
}

func (c *CLI) GitDir() (string, error) {
	out, err := c.run("rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return out, nil
}
