package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/k4r01q/rung/internal/config"
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/model"
)

// maxStateVersion is the newest on-disk schema this build understands.
const maxStateVersion = 1

// trunkSentinel marks a branch parented directly on the trunk in stack.json.
const trunkSentinel = "TRUNK"

type rawField = json.RawMessage

// known field names per object, used to split unknown fields for round-trip
// preservation.
var (
	stackKnown  = []string{"version", "trunk", "branches"}
	branchKnown = []string{"parent", "pr", "last_synced_parent_tip", "created_at", "pr_state", "pr_url", "pr_fetched_at"}
	configKnown = []string{"version", "trunk", "remote", "merge_method", "no_color"}
)

func splitUnknown(raw []byte, known []string) (map[string]rawField, error) {
	all := map[string]rawField{}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

type branchJSON struct {
	Parent              string     `json:"parent"`
	PR                  *int       `json:"pr"`
	LastSyncedParentTip *string    `json:"last_synced_parent_tip"`
	CreatedAt           time.Time  `json:"created_at"`
	PRState             string     `json:"pr_state,omitempty"`
	PRURL               string     `json:"pr_url,omitempty"`
	PRFetchedAt         *time.Time `json:"pr_fetched_at,omitempty"`
}

type stackJSON struct {
	Version  int                        `json:"version"`
	Trunk    string                     `json:"trunk"`
	Branches map[string]json.RawMessage `json:"branches"`
}

func (s *Store) decodeStack(raw []byte) (*model.Stack, error) {
	var file stackJSON
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", stackFileName)
	}
	if file.Version > maxStateVersion {
		return nil, errs.New(errs.KindUnsupportedStateVersion,
			"%s has version %d, this build understands up to %d", stackFileName, file.Version, maxStateVersion).
			WithSuggestion("upgrade rung")
	}
	var err error
	if s.stackExtra, err = splitUnknown(raw, stackKnown); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", stackFileName)
	}

	trunk, err := model.NewBranchName(file.Trunk)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid trunk", stackFileName)
	}
	stack := model.NewStack(trunk)
	s.branchExtra = map[string]map[string]rawField{}

	for name, branchRaw := range file.Branches {
		bname, err := model.NewBranchName(name)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid branch name", stackFileName)
		}
		var bj branchJSON
		if err := json.Unmarshal(branchRaw, &bj); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse branch %q", name)
		}
		if s.branchExtra[name], err = splitUnknown(branchRaw, branchKnown); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse branch %q", name)
		}

		b := &model.Branch{Name: bname, CreatedAt: bj.CreatedAt, PRState: bj.PRState, PRURL: bj.PRURL}
		if bj.PRFetchedAt != nil {
			b.PRFetchedAt = *bj.PRFetchedAt
		}
		if bj.Parent == trunkSentinel {
			b.Parent = trunk
		} else if b.Parent, err = model.NewBranchName(bj.Parent); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "branch %q has invalid parent", name)
		}
		if bj.PR != nil {
			if b.PR, err = model.NewPrNumber(*bj.PR); err != nil {
				return nil, errs.Wrap(err, errs.KindCorruptState, "branch %q has invalid PR number", name)
			}
		}
		if bj.LastSyncedParentTip != nil {
			if b.LastSyncedParentTip, err = model.NewCommit(*bj.LastSyncedParentTip); err != nil {
				return nil, errs.Wrap(err, errs.KindCorruptState, "branch %q has invalid sync tip", name)
			}
		}
		stack.Branches[bname] = b
	}
	return stack, nil
}

func (s *Store) encodeStack(stack *model.Stack) ([]byte, error) {
	branches := map[string]json.RawMessage{}
	for name, b := range stack.Branches {
		bj := branchJSON{CreatedAt: b.CreatedAt, PRState: b.PRState, PRURL: b.PRURL}
		if b.Parent == stack.Trunk {
			bj.Parent = trunkSentinel
		} else {
			bj.Parent = b.Parent.String()
		}
		if b.PR.Valid() {
			n := int(b.PR)
			bj.PR = &n
		}
		if b.LastSyncedParentTip != "" {
			sha := b.LastSyncedParentTip.String()
			bj.LastSyncedParentTip = &sha
		}
		if !b.PRFetchedAt.IsZero() {
			t := b.PRFetchedAt
			bj.PRFetchedAt = &t
		}
		enc, err := mergeUnknown(bj, s.branchExtra[name.String()])
		if err != nil {
			return nil, err
		}
		branches[name.String()] = enc
	}

	file := stackJSON{Version: maxStateVersion, Trunk: stack.Trunk.String(), Branches: branches}
	return mergeUnknownIndent(file, s.stackExtra)
}

// mergeUnknown marshals v and re-attaches preserved unknown fields.
func mergeUnknown(v interface{}, extra map[string]rawField) (json.RawMessage, error) {
	enc, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode state")
	}
	if len(extra) == 0 {
		return enc, nil
	}
	all := map[string]rawField{}
	if err := json.Unmarshal(enc, &all); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode state")
	}
	for k, raw := range extra {
		if _, exists := all[k]; !exists {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}

func mergeUnknownIndent(v interface{}, extra map[string]rawField) ([]byte, error) {
	merged, err := mergeUnknown(v, extra)
	if err != nil {
		return nil, err
	}
	var buf []byte
	var out map[string]json.RawMessage
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode state")
	}
	buf, err = json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode state")
	}
	return append(buf, '\n'), nil
}

// === Config ===

type configJSON struct {
	Version     int    `json:"version"`
	Trunk       string `json:"trunk"`
	Remote      string `json:"remote"`
	MergeMethod string `json:"merge_method"`
	NoColor     bool   `json:"no_color"`
}

func (s *Store) loadConfig() (config.Config, error) {
	raw, err := os.ReadFile(s.configPath())
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	if err != nil {
		return config.Config{}, errs.Wrap(err, errs.KindCorruptState, "failed to read %s", configFileName)
	}
	var cj configJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return config.Config{}, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", configFileName)
	}
	if cj.Version > maxStateVersion {
		return config.Config{}, errs.New(errs.KindUnsupportedStateVersion,
			"%s has version %d, this build understands up to %d", configFileName, cj.Version, maxStateVersion)
	}
	if s.configExtra, err = splitUnknown(raw, configKnown); err != nil {
		return config.Config{}, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", configFileName)
	}
	cfg := config.Default()
	if cj.Trunk != "" {
		cfg.Trunk = cj.Trunk
	}
	if cj.Remote != "" {
		cfg.Remote = cj.Remote
	}
	if cj.MergeMethod != "" {
		cfg.MergeMethod = cj.MergeMethod
	}
	cfg.NoColor = cfg.NoColor || cj.NoColor
	return cfg, nil
}

func (s *Store) encodeConfig(cfg config.Config) ([]byte, error) {
	cj := configJSON{
		Version:     maxStateVersion,
		Trunk:       cfg.Trunk,
		Remote:      cfg.Remote,
		MergeMethod: cfg.MergeMethod,
		NoColor:     cfg.NoColor,
	}
	return mergeUnknownIndent(cj, s.configExtra)
}

// === Journal ===

type planStepJSON struct {
	Branch   string `json:"branch"`
	Parent   string `json:"parent"`
	OldTip   string `json:"old_tip"`
	Upstream string `json:"upstream,omitempty"`
}

type journalJSON struct {
	Version        int               `json:"version"`
	Kind           string            `json:"kind"`
	ID             string            `json:"id"`
	StartedAt      time.Time         `json:"started_at"`
	Base           string            `json:"base"`
	OriginalBranch string            `json:"original_branch,omitempty"`
	Plan           []planStepJSON    `json:"plan"`
	Cursor         int               `json:"cursor"`
	Backups        map[string]string `json:"backups"`
	PrevSynced     map[string]string `json:"prev_synced,omitempty"`
}

func encodeJournal(j *model.Journal) ([]byte, error) {
	jj := journalJSON{
		Version:        maxStateVersion,
		Kind:           string(j.Kind),
		ID:             j.ID,
		StartedAt:      j.StartedAt,
		Base:           j.Base.String(),
		OriginalBranch: j.OriginalBranch.String(),
		Cursor:         j.Cursor,
		Backups:        commitMapToJSON(j.Backups),
		PrevSynced:     commitMapToJSON(j.PrevSynced),
	}
	for _, st := range j.Plan {
		jj.Plan = append(jj.Plan, planStepJSON{
			Branch:   st.Branch.String(),
			Parent:   st.Parent.String(),
			OldTip:   st.OldTip.String(),
			Upstream: st.Upstream.String(),
		})
	}
	buf, err := json.MarshalIndent(jj, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode journal")
	}
	return append(buf, '\n'), nil
}

func decodeJournal(raw []byte) (*model.Journal, error) {
	var jj journalJSON
	if err := json.Unmarshal(raw, &jj); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", opFileName)
	}
	if jj.Version > maxStateVersion {
		return nil, errs.New(errs.KindUnsupportedStateVersion,
			"%s has version %d, this build understands up to %d", opFileName, jj.Version, maxStateVersion)
	}
	j := &model.Journal{
		Kind:      model.OpKind(jj.Kind),
		ID:        jj.ID,
		StartedAt: jj.StartedAt,
		Cursor:    jj.Cursor,
	}
	var err error
	if j.Base, err = model.NewBranchName(jj.Base); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid base", opFileName)
	}
	if jj.OriginalBranch != "" {
		if j.OriginalBranch, err = model.NewBranchName(jj.OriginalBranch); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid original branch", opFileName)
		}
	}
	for _, st := range jj.Plan {
		step := model.PlanStep{}
		if step.Branch, err = model.NewBranchName(st.Branch); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid plan step", opFileName)
		}
		if step.Parent, err = model.NewBranchName(st.Parent); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid plan step", opFileName)
		}
		if step.OldTip, err = model.NewCommit(st.OldTip); err != nil {
			return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid plan step", opFileName)
		}
		if st.Upstream != "" {
			if step.Upstream, err = model.NewCommit(st.Upstream); err != nil {
				return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid plan step", opFileName)
			}
		}
		j.Plan = append(j.Plan, step)
	}
	if j.Backups, err = commitMapFromJSON(jj.Backups); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid backups", opFileName)
	}
	if j.PrevSynced, err = commitMapFromJSON(jj.PrevSynced); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid prev_synced", opFileName)
	}
	return j, nil
}

// === Undo ===

type undoJSON struct {
	OpID       string            `json:"op_id"`
	FinishedAt time.Time         `json:"finished_at"`
	Branches   map[string]string `json:"branches"`
	PrevSynced map[string]string `json:"prev_synced,omitempty"`
}

func encodeUndo(rec *model.UndoRecord) ([]byte, error) {
	uj := undoJSON{
		OpID:       rec.OpID,
		FinishedAt: rec.FinishedAt,
		Branches:   commitMapToJSON(rec.Branches),
		PrevSynced: commitMapToJSON(rec.PrevSynced),
	}
	buf, err := json.MarshalIndent(uj, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to encode undo record")
	}
	return append(buf, '\n'), nil
}

func decodeUndo(raw []byte) (*model.UndoRecord, error) {
	var uj undoJSON
	if err := json.Unmarshal(raw, &uj); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to parse %s", undoFileName)
	}
	rec := &model.UndoRecord{OpID: uj.OpID, FinishedAt: uj.FinishedAt}
	var err error
	if rec.Branches, err = commitMapFromJSON(uj.Branches); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid branches", undoFileName)
	}
	if rec.PrevSynced, err = commitMapFromJSON(uj.PrevSynced); err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "%s has invalid prev_synced", undoFileName)
	}
	return rec, nil
}

func commitMapToJSON(m map[model.BranchName]model.Commit) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		out[k.String()] = v.String()
	}
	return out
}

func commitMapFromJSON(m map[string]string) (map[model.BranchName]model.Commit, error) {
	out := map[model.BranchName]model.Commit{}
	for k, v := range m {
		name, err := model.NewBranchName(k)
		if err != nil {
			return nil, err
		}
		if v == "" {
			out[name] = ""
			continue
		}
		tip, err := model.NewCommit(v)
		if err != nil {
			return nil, err
		}
		out[name] = tip
	}
	return out, nil
}
