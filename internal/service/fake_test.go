package service

import (
	"fmt"
	"sort"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/forge"
	"github.com/k4r01q/rung/internal/git"
	"github.com/k4r01q/rung/internal/model"
)

// fakeGit simulates a repository as a commit DAG so the engines can be
// exercised without a real git binary.
type fakeGit struct {
	seq      int
	commits  map[model.Commit][]model.Commit // commit -> parents
	subjects map[model.Commit]string
	branches map[model.BranchName]model.Commit
	remotes  map[model.BranchName]model.Commit
	current  model.BranchName
	dirty    bool

	// Conflict simulation: rebasing any commit in conflictOn pauses.
	conflictOn map[model.Commit]bool
	rebasing   *pendingRebase

	pushed  []string
	fetched []string
}

type pendingRebase struct {
	branch    model.BranchName
	base      model.Commit // replayed so far
	remaining []model.Commit
}

func newFakeGit(trunk model.BranchName) *fakeGit {
	g := &fakeGit{
		commits:    map[model.Commit][]model.Commit{},
		subjects:   map[model.Commit]string{},
		branches:   map[model.BranchName]model.Commit{},
		remotes:    map[model.BranchName]model.Commit{},
		conflictOn: map[model.Commit]bool{},
	}
	root := g.newCommit(nil, "initial commit")
	g.branches[trunk] = root
	g.current = trunk
	return g
}

func (g *fakeGit) newCommit(parents []model.Commit, subject string) model.Commit {
	g.seq++
	sha := model.Commit(fmt.Sprintf("%040d", g.seq))
	g.commits[sha] = parents
	g.subjects[sha] = subject
	return sha
}

// commitOn adds a commit to a branch and returns its sha.
func (g *fakeGit) commitOn(branch model.BranchName, subject string) model.Commit {
	tip := g.branches[branch]
	sha := g.newCommit([]model.Commit{tip}, subject)
	g.branches[branch] = sha
	return sha
}

func (g *fakeGit) ancestors(c model.Commit) map[model.Commit]bool {
	seen := map[model.Commit]bool{}
	queue := []model.Commit{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, g.commits[cur]...)
	}
	return seen
}

// chain returns the commits on branch tip back to (but excluding) stop,
// oldest first. Histories in tests are linear.
func (g *fakeGit) chain(tip, stop model.Commit) []model.Commit {
	var out []model.Commit
	cur := tip
	for cur != stop && cur != "" {
		out = append([]model.Commit{cur}, out...)
		parents := g.commits[cur]
		if len(parents) == 0 {
			break
		}
		cur = parents[0]
	}
	return out
}

func (g *fakeGit) CurrentBranch() (model.BranchName, error) { return g.current, nil }
func (g *fakeGit) IsDetachedHead() (bool, error)            { return false, nil }
func (g *fakeGit) IsWorkingTreeClean() (bool, error)        { return !g.dirty, nil }
func (g *fakeGit) HasRebaseInProgress() (bool, error)       { return g.rebasing != nil, nil }

func (g *fakeGit) BranchExists(b model.BranchName) bool {
	_, ok := g.branches[b]
	return ok
}

func (g *fakeGit) Tip(b model.BranchName) (model.Commit, error) {
	tip, ok := g.branches[b]
	if !ok {
		return "", errs.New(errs.KindMissingBranch, "branch '%s' does not exist locally", b)
	}
	return tip, nil
}

func (g *fakeGit) RemoteTip(remote string, b model.BranchName) (model.Commit, error) {
	tip, ok := g.remotes[b]
	if !ok {
		return "", errs.New(errs.KindMissingBranch, "branch '%s/%s' is not known locally", remote, b)
	}
	return tip, nil
}

func (g *fakeGit) MergeBase(a, b model.Commit) (model.Commit, error) {
	seen := g.ancestors(a)
	queue := []model.Commit{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			return cur, nil
		}
		queue = append(queue, g.commits[cur]...)
	}
	return "", errs.New(errs.KindGitCommandFailed, "no merge base between %s and %s", a, b)
}

func (g *fakeGit) CountCommits(from, to model.Commit) (int, error) {
	exclude := g.ancestors(from)
	count := 0
	for c := range g.ancestors(to) {
		if !exclude[c] {
			count++
		}
	}
	return count, nil
}

func (g *fakeGit) LogRange(from, to model.Commit) ([]git.LogEntry, error) {
	chain := g.chain(to, from)
	var out []git.LogEntry
	for i := len(chain) - 1; i >= 0; i-- { // newest first, like git log
		out = append(out, git.LogEntry{Commit: chain[i], Subject: g.subjects[chain[i]], Author: "test"})
	}
	return out, nil
}

func (g *fakeGit) Checkout(b model.BranchName) error {
	if !g.BranchExists(b) {
		return errs.New(errs.KindMissingBranch, "branch '%s' does not exist locally", b)
	}
	g.current = b
	return nil
}

func (g *fakeGit) CreateBranch(name model.BranchName) error {
	if g.BranchExists(name) {
		return errs.New(errs.KindGitCommandFailed, "branch '%s' already exists", name)
	}
	g.branches[name] = g.branches[g.current]
	return nil
}

func (g *fakeGit) DeleteBranch(name model.BranchName, force bool) error {
	delete(g.branches, name)
	return nil
}

func (g *fakeGit) Fetch(remote string, b model.BranchName) error {
	g.fetched = append(g.fetched, b.String())
	return nil
}

func (g *fakeGit) Push(remote string, b model.BranchName, force bool) error {
	g.pushed = append(g.pushed, b.String())
	g.remotes[b] = g.branches[b]
	return nil
}

func (g *fakeGit) PullFFOnly(remote string, b model.BranchName) error {
	if err := g.Checkout(b); err != nil {
		return err
	}
	remoteTip, ok := g.remotes[b]
	if !ok {
		return nil
	}
	localTip := g.branches[b]
	if g.ancestors(remoteTip)[localTip] {
		g.branches[b] = remoteTip
		return nil
	}
	if g.ancestors(localTip)[remoteTip] {
		return nil // already ahead
	}
	return errs.New(errs.KindGitCommandFailed, "cannot fast-forward %s", b)
}

func (g *fakeGit) RebaseOnto(newBase model.Commit, upstream model.Commit, branch model.BranchName) (git.RebaseOutcome, error) {
	replay := g.chain(g.branches[branch], upstream)
	return g.replay(branch, newBase, replay)
}

func (g *fakeGit) replay(branch model.BranchName, base model.Commit, commits []model.Commit) (git.RebaseOutcome, error) {
	tip := base
	for i, c := range commits {
		if g.conflictOn[c] {
			g.rebasing = &pendingRebase{branch: branch, base: tip, remaining: commits[i:]}
			g.current = branch
			return git.RebaseOutcome{Clean: false, Files: []string{"file-" + g.subjects[c] + ".txt"}}, nil
		}
		tip = g.newCommit([]model.Commit{tip}, g.subjects[c])
	}
	g.branches[branch] = tip
	g.current = branch
	return git.RebaseOutcome{Clean: true, NewTip: tip}, nil
}

func (g *fakeGit) RebaseContinue() (git.RebaseOutcome, error) {
	if g.rebasing == nil {
		return git.RebaseOutcome{}, errs.New(errs.KindGitCommandFailed, "no rebase in progress")
	}
	p := g.rebasing
	g.rebasing = nil
	// The user resolved the first conflicted commit; replay it and the rest.
	resolved := g.newCommit([]model.Commit{p.base}, g.subjects[p.remaining[0]])
	rest := p.remaining[1:]
	out, err := g.replayRest(p.branch, resolved, rest)
	return out, err
}

func (g *fakeGit) replayRest(branch model.BranchName, base model.Commit, commits []model.Commit) (git.RebaseOutcome, error) {
	return g.replay(branch, base, commits)
}

func (g *fakeGit) RebaseAbort() error {
	g.rebasing = nil
	return nil
}

func (g *fakeGit) StageAll() error { return nil }

func (g *fakeGit) Commit(message string) (model.Commit, error) {
	sha := g.commitOn(g.current, message)
	g.dirty = false
	return sha, nil
}

func (g *fakeGit) ResetHard(branch model.BranchName, target model.Commit) error {
	g.branches[branch] = target
	return nil
}

func (g *fakeGit) RemoteURL(remote string) (string, error) {
	return "git@github.com:acme/widgets.git", nil
}

func (g *fakeGit) GitDir() (string, error) { return "", nil }

var _ git.Driver = (*fakeGit)(nil)

// fakeForge records forge calls and hands out PR numbers.
type fakeForge struct {
	nextNumber int
	prs        map[model.PrNumber]*forge.PR
	comments   map[model.PrNumber][]forge.Comment
	commentSeq int64

	mergeSHA    model.Commit
	merged      []model.PrNumber
	baseUpdates map[model.PrNumber]model.BranchName
	deleted     []string
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		nextNumber:  0,
		prs:         map[model.PrNumber]*forge.PR{},
		comments:    map[model.PrNumber][]forge.Comment{},
		baseUpdates: map[model.PrNumber]model.BranchName{},
	}
}

func (f *fakeForge) addPR(number int, head, base string) {
	f.prs[model.PrNumber(number)] = &forge.PR{
		Number:     model.PrNumber(number),
		State:      forge.PROpen,
		HeadBranch: head,
		BaseBranch: base,
		URL:        fmt.Sprintf("https://example.test/pr/%d", number),
	}
	if number > f.nextNumber {
		f.nextNumber = number
	}
}

func (f *fakeForge) GetPR(number model.PrNumber) (forge.PR, error) {
	pr, ok := f.prs[number]
	if !ok {
		fe := errs.New(errs.KindForgeError, "PR #%d not found", number)
		fe.Status = 404
		return forge.PR{}, fe
	}
	return *pr, nil
}

func (f *fakeForge) FindPRForBranch(branch model.BranchName) (*forge.PR, error) {
	var numbers []int
	for n := range f.prs {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		pr := f.prs[model.PrNumber(n)]
		if pr.HeadBranch == branch.String() && pr.State == forge.PROpen {
			cp := *pr
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeForge) CreatePullRequest(req forge.CreatePR) (forge.PR, error) {
	f.nextNumber++
	pr := &forge.PR{
		Number:     model.PrNumber(f.nextNumber),
		Title:      req.Title,
		Body:       req.Body,
		State:      forge.PROpen,
		HeadBranch: req.Head.String(),
		BaseBranch: req.Base.String(),
		URL:        fmt.Sprintf("https://example.test/pr/%d", f.nextNumber),
	}
	if req.Draft {
		pr.State = forge.PRDraft
	}
	f.prs[pr.Number] = pr
	return *pr, nil
}

func (f *fakeForge) UpdatePullRequest(number model.PrNumber, upd forge.UpdatePR) (forge.PR, error) {
	pr, ok := f.prs[number]
	if !ok {
		return forge.PR{}, errs.New(errs.KindForgeError, "PR #%d not found", number)
	}
	if upd.Title != nil {
		pr.Title = *upd.Title
	}
	if upd.Body != nil {
		pr.Body = *upd.Body
	}
	if upd.Base != nil {
		pr.BaseBranch = upd.Base.String()
		f.baseUpdates[number] = *upd.Base
	}
	return *pr, nil
}

func (f *fakeForge) MergePR(number model.PrNumber, method forge.MergeMethod) (forge.MergeResult, error) {
	pr, ok := f.prs[number]
	if !ok {
		return forge.MergeResult{}, errs.New(errs.KindForgeError, "PR #%d not found", number)
	}
	pr.State = forge.PRMerged
	f.merged = append(f.merged, number)
	return forge.MergeResult{SHA: f.mergeSHA, Merged: true}, nil
}

func (f *fakeForge) DeleteRemoteBranch(branch model.BranchName) error {
	f.deleted = append(f.deleted, branch.String())
	return nil
}

func (f *fakeForge) ListComments(number model.PrNumber) ([]forge.Comment, error) {
	return f.comments[number], nil
}

func (f *fakeForge) CreateComment(number model.PrNumber, body string) error {
	f.commentSeq++
	f.comments[number] = append(f.comments[number], forge.Comment{ID: f.commentSeq, Body: body})
	return nil
}

func (f *fakeForge) UpdateComment(commentID int64, body string) error {
	for n, list := range f.comments {
		for i, c := range list {
			if c.ID == commentID {
				f.comments[n][i].Body = body
				return nil
			}
		}
	}
	return errs.New(errs.KindForgeError, "comment %d not found", commentID)
}

var _ forge.Driver = (*fakeForge)(nil)
