package forge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
)

// GitHub talks to the GitHub REST API (or a GitHub Enterprise instance via a
// custom base URL).
type GitHub struct {
	client  *http.Client
	baseURL string
	token   string
	owner   string
	repo    string
}

// Transport errors and 5xx responses are retried on this fixed schedule;
// everything rung sends is idempotent, so a duplicate delivery is harmless.
var retrySchedule = []time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second}

// NewGitHub builds a client for the repository behind remoteURL. The token
// comes from GITHUB_TOKEN.
func NewGitHub(remoteURL, baseURL string) (*GitHub, error) {
	owner, repo, err := ParseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, errs.New(errs.KindNotAuthenticated, "no GitHub token found").
			WithSuggestion("set GITHUB_TOKEN in the environment")
	}
	return &GitHub{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		token:   token,
		owner:   owner,
		repo:    repo,
	}, nil
}

// ParseRemote extracts owner and repository name from an https, ssh, or
// scp-style GitHub remote URL.
func ParseRemote(remote string) (owner, repo string, err error) {
	trimmed := remote
	switch {
	case strings.HasPrefix(trimmed, "https://"), strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "ssh://"):
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", "", errs.Wrap(err, errs.KindForgeError, "cannot parse remote URL %q", remote)
		}
		trimmed = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(trimmed, "@") && strings.Contains(trimmed, ":"):
		// scp syntax: git@github.com:owner/repo.git
		trimmed = trimmed[strings.IndexByte(trimmed, ':')+1:]
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errs.New(errs.KindForgeError, "remote %q does not look like a GitHub repository", remote)
	}
	return parts[0], parts[1], nil
}

func (g *GitHub) do(method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errs.Wrap(err, errs.KindForgeError, "failed to encode request")
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := g.doOnce(method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt >= len(retrySchedule) {
			return lastErr
		}
		logs.Warn("Forge call %s %s failed (attempt %d): %v", method, path, attempt+1, err)
		time.Sleep(retrySchedule[attempt])
	}
}

// retryable: transport errors and server-side failures. Auth and client
// errors will not get better by retrying.
func retryable(err error) bool {
	e := errs.Get(err)
	if e == nil {
		return false
	}
	if e.Kind != errs.KindForgeError {
		return false
	}
	return e.Status == 0 || e.Status >= 500
}

func (g *GitHub) doOnce(method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, g.baseURL+path, body)
	if err != nil {
		return errs.Wrap(err, errs.KindForgeError, "failed to build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("User-Agent", "rung")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.KindForgeError, "request to forge failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(err, errs.KindForgeError, "failed to decode forge response")
		}
		return nil
	}

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.New(errs.KindNotAuthenticated, "forge rejected the token").
			WithSuggestion("check GITHUB_TOKEN")
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("x-ratelimit-remaining") == "0":
		fe := errs.New(errs.KindForgeError, "forge rate limit exceeded")
		fe.Status = resp.StatusCode
		return fe
	default:
		fe := errs.New(errs.KindForgeError, "forge returned %d: %s", resp.StatusCode, string(text))
		fe.Status = resp.StatusCode
		return fe
	}
}

type apiPR struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Merged bool   `json:"merged"`
	Draft  bool   `json:"draft"`
	URL    string `json:"html_url"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

func (p apiPR) toPR() PR {
	state := PRState(p.State)
	if p.Merged {
		state = PRMerged
	} else if p.Draft && state == PROpen {
		state = PRDraft
	}
	return PR{
		Number:     model.PrNumber(p.Number),
		Title:      p.Title,
		Body:       p.Body,
		State:      state,
		HeadBranch: p.Head.Ref,
		BaseBranch: p.Base.Ref,
		URL:        p.URL,
	}
}

func (g *GitHub) GetPR(number model.PrNumber) (PR, error) {
	var out apiPR
	err := g.do(http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", g.owner, g.repo, number), nil, &out)
	if err != nil {
		return PR{}, err
	}
	return out.toPR(), nil
}

func (g *GitHub) FindPRForBranch(branch model.BranchName) (*PR, error) {
	var out []apiPR
	path := fmt.Sprintf("/repos/%s/%s/pulls?head=%s&state=open",
		g.owner, g.repo, url.QueryEscape(g.owner+":"+branch.String()))
	if err := g.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	pr := out[0].toPR()
	return &pr, nil
}

func (g *GitHub) CreatePullRequest(req CreatePR) (PR, error) {
	body := map[string]interface{}{
		"title": req.Title,
		"body":  req.Body,
		"head":  req.Head.String(),
		"base":  req.Base.String(),
		"draft": req.Draft,
	}
	var out apiPR
	if err := g.do(http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", g.owner, g.repo), body, &out); err != nil {
		return PR{}, err
	}
	return out.toPR(), nil
}

func (g *GitHub) UpdatePullRequest(number model.PrNumber, upd UpdatePR) (PR, error) {
	body := map[string]interface{}{}
	if upd.Title != nil {
		body["title"] = *upd.Title
	}
	if upd.Body != nil {
		body["body"] = *upd.Body
	}
	if upd.Base != nil {
		body["base"] = upd.Base.String()
	}
	var out apiPR
	if err := g.do(http.MethodPatch, fmt.Sprintf("/repos/%s/%s/pulls/%d", g.owner, g.repo, number), body, &out); err != nil {
		return PR{}, err
	}
	return out.toPR(), nil
}

func (g *GitHub) MergePR(number model.PrNumber, method MergeMethod) (MergeResult, error) {
	body := map[string]interface{}{"merge_method": string(method)}
	var out struct {
		SHA    string `json:"sha"`
		Merged bool   `json:"merged"`
	}
	if err := g.do(http.MethodPut, fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", g.owner, g.repo, number), body, &out); err != nil {
		return MergeResult{}, err
	}
	sha, err := model.NewCommit(out.SHA)
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{SHA: sha, Merged: out.Merged}, nil
}

func (g *GitHub) DeleteRemoteBranch(branch model.BranchName) error {
	return g.do(http.MethodDelete,
		fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", g.owner, g.repo, branch.String()), nil, nil)
}

func (g *GitHub) ListComments(number model.PrNumber) ([]Comment, error) {
	var out []struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	}
	if err := g.do(http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", g.owner, g.repo, number), nil, &out); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(out))
	for _, c := range out {
		comments = append(comments, Comment{ID: c.ID, Body: c.Body})
	}
	return comments, nil
}

func (g *GitHub) CreateComment(number model.PrNumber, body string) error {
	return g.do(http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/issues/%d/comments", g.owner, g.repo, number),
		map[string]string{"body": body}, nil)
}

func (g *GitHub) UpdateComment(commentID int64, body string) error {
	return g.do(http.MethodPatch,
		fmt.Sprintf("/repos/%s/%s/issues/comments/%d", g.owner, g.repo, commentID),
		map[string]string{"body": body}, nil)
}
