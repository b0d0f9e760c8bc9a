package service

import (
	"strings"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/forge"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
	"github.com/k4r01q/rung/internal/render"
)

// SubmitOptions control a submit run.
type SubmitOptions struct {
	DryRun bool
	Draft  bool
	Force  bool
	// Title overrides the generated title for the current branch only.
	Title string
}

// SubmitAction is one planned or performed step, for reporting.
type SubmitAction struct {
	Branch model.BranchName `json:"branch"`
	Action string           `json:"action"` // push+create, push+update
	Base   model.BranchName `json:"base"`
	PR     int              `json:"pr,omitempty"`
	URL    string           `json:"url,omitempty"`
}

// SubmitReport summarizes a submit run.
type SubmitReport struct {
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Actions []SubmitAction `json:"actions"`
}

// Submit pushes every tracked branch in topological order and creates or
// updates its PR, stamping each with the stack comment.
func (s *Service) Submit(opts SubmitOptions) (*SubmitReport, error) {
	if err := s.requireNoJournal(); err != nil {
		return nil, err
	}
	if err := s.requireCleanTree(); err != nil {
		return nil, err
	}
	if !opts.DryRun {
		if err := s.requireForge(); err != nil {
			return nil, err
		}
	}

	current, _ := s.Git.CurrentBranch()
	report := &SubmitReport{}

	for _, name := range s.stack.TopologicalOrder() {
		node := s.stack.Get(name)

		action := SubmitAction{Branch: name, Base: node.Parent}
		if node.PR.Valid() {
			action.Action = "push+update"
			action.PR = int(node.PR)
		} else {
			action.Action = "push+create"
		}
		if opts.DryRun {
			report.Actions = append(report.Actions, action)
			continue
		}

		if err := s.Git.Push(s.cfg.Remote, name, opts.Force); err != nil {
			return report, errs.Wrap(err, errs.KindGitCommandFailed, "failed to push %s", name)
		}

		titleOverride := ""
		if opts.Title != "" && name == current {
			titleOverride = opts.Title
		}

		pr := node.PR
		if !pr.Valid() {
			// The branch may have a PR rung does not know about yet.
			existing, err := s.Forge.FindPRForBranch(name)
			if err != nil {
				return report, err
			}
			if existing != nil {
				pr = existing.Number
				logs.Info("Adopted existing PR #%d for '%s'", pr, name)
			}
		}

		if pr.Valid() {
			upd := forge.UpdatePR{Base: &node.Parent}
			if titleOverride != "" {
				upd.Title = &titleOverride
			}
			updated, err := s.Forge.UpdatePullRequest(pr, upd)
			if err != nil {
				return report, err
			}
			if pr != node.PR {
				if err := s.recordPR(name, pr); err != nil {
					return report, err
				}
			}
			action.PR = int(pr)
			action.URL = updated.URL
			report.Updated++
		} else {
			title := titleOverride
			if title == "" {
				title = s.prTitle(name, node.Parent)
			}
			created, err := s.Forge.CreatePullRequest(forge.CreatePR{
				Title: title,
				Body:  render.Comment(s.stack, name),
				Head:  name,
				Base:  node.Parent,
				Draft: opts.Draft,
			})
			if err != nil {
				return report, err
			}
			if err := s.recordPR(name, created.Number); err != nil {
				return report, err
			}
			action.Action = "push+create"
			action.PR = int(created.Number)
			action.URL = created.URL
			report.Created++
		}

		s.postStackComment(name)
		report.Actions = append(report.Actions, action)
	}

	return report, nil
}

func (s *Service) recordPR(name model.BranchName, pr model.PrNumber) error {
	if err := s.stack.SetPR(name, pr); err != nil {
		return err
	}
	return s.saveStack()
}

// prTitle derives a PR title from the branch's last commit subject, falling
// back to a humanized branch name.
func (s *Service) prTitle(name, parent model.BranchName) string {
	tip, err := s.tip(name)
	if err == nil {
		if parentTip, err := s.tip(parent); err == nil {
			if entries, err := s.Git.LogRange(parentTip, tip); err == nil && len(entries) > 0 {
				return entries[0].Subject
			}
		}
	}
	return humanizeBranchName(name)
}

func humanizeBranchName(name model.BranchName) string {
	last := name.String()
	if i := strings.LastIndexByte(last, '/'); i >= 0 {
		last = last[i+1:]
	}
	words := strings.FieldsFunc(last, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return last
	}
	return strings.Join(words, " ")
}
