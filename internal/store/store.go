// Package store persists the stack forest, repo config, operation journal,
// and sync backups under <gitdir>/rung/. All writes are temp-file + rename so
// a crash leaves either the prior or the new state, never a torn file.
package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/k4r01q/rung/internal/config"
	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
	"github.com/k4r01q/rung/internal/model"
)

const (
	stackFileName  = "stack.json"
	configFileName = "config.json"
	opFileName     = "op.json"
	undoFileName   = "undo.json"
	lockFileName   = "lock"
	backupsDirName = "backups"
)

// Store reads and writes rung state for one repository.
type Store struct {
	dir string

	mu sync.Mutex
	fl *flock.Flock

	// Unknown JSON fields captured at load time, merged back on save so
	// newer-but-compatible state survives a round trip.
	stackExtra  map[string]rawField
	branchExtra map[string]map[string]rawField
	configExtra map[string]rawField
}

// Open returns a store rooted at <gitDir>/rung. It does not touch the disk.
func Open(gitDir string) *Store {
	dir := filepath.Join(gitDir, "rung")
	return &Store{
		dir: dir,
		fl:  flock.New(filepath.Join(dir, lockFileName)),
	}
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) stackPath() string  { return filepath.Join(s.dir, stackFileName) }
func (s *Store) configPath() string { return filepath.Join(s.dir, configFileName) }
func (s *Store) opPath() string     { return filepath.Join(s.dir, opFileName) }
func (s *Store) undoPath() string   { return filepath.Join(s.dir, undoFileName) }

// IsInitialized reports whether rung has been initialized here.
func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.stackPath())
	return err == nil
}

// Init creates the state directory and writes an empty stack plus the given
// config.
func (s *Store) Init(cfg config.Config) error {
	if s.IsInitialized() {
		return errs.New(errs.KindAlreadyInitialized, "rung is already initialized in this repository")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(err, errs.KindCorruptState, "failed to create state directory")
	}
	trunk, err := model.NewBranchName(cfg.Trunk)
	if err != nil {
		return err
	}
	if err := s.SaveConfig(cfg); err != nil {
		return err
	}
	return s.SaveStack(model.NewStack(trunk))
}

// Load reads the stack, config, and (if present) the suspended-operation
// journal. Loading validates the stack invariants; this is the single point
// that guarantees the in-memory model is consistent.
func (s *Store) Load() (*model.Stack, config.Config, *model.Journal, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	raw, err := os.ReadFile(s.stackPath())
	if os.IsNotExist(err) {
		return nil, cfg, nil, errs.New(errs.KindNotInitialized, "rung not initialized").
			WithSuggestion("run `rung init` first")
	}
	if err != nil {
		return nil, cfg, nil, errs.Wrap(err, errs.KindCorruptState, "failed to read %s", stackFileName)
	}
	stack, err := s.decodeStack(raw)
	if err != nil {
		return nil, cfg, nil, err
	}
	if err := stack.Validate(); err != nil {
		return nil, cfg, nil, errs.Wrap(err, errs.KindCorruptState, "%s violates stack invariants", stackFileName)
	}

	journal, err := s.loadJournal()
	if err != nil {
		return nil, cfg, nil, err
	}
	return stack, cfg, journal, nil
}

// SaveStack writes the stack atomically.
func (s *Store) SaveStack(stack *model.Stack) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	data, err := s.encodeStack(stack)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.stackPath(), data)
}

// SaveConfig writes the repo config atomically.
func (s *Store) SaveConfig(cfg config.Config) error {
	data, err := s.encodeConfig(cfg)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.configPath(), data)
}

// SaveJournal persists the suspended-operation record. Callers persist the
// stack first at each step boundary, so a crash between the two leaves a
// journal referring to a past-or-current stack, never a future one.
func (s *Store) SaveJournal(j *model.Journal) error {
	data, err := encodeJournal(j)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.opPath(), data)
}

// ClearJournal removes the journal. Missing is not an error.
func (s *Store) ClearJournal() error {
	if err := os.Remove(s.opPath()); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.KindCorruptState, "failed to clear %s", opFileName)
	}
	return nil
}

func (s *Store) loadJournal() (*model.Journal, error) {
	raw, err := os.ReadFile(s.opPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to read %s", opFileName)
	}
	return decodeJournal(raw)
}

// === Backups ===

// WriteBackup records the pre-sync tip of branch under the operation's backup
// directory, one single-line SHA per branch. Branch slashes become
// directories.
func (s *Store) WriteBackup(opID string, branch model.BranchName, tip model.Commit) error {
	path := s.backupPath(opID, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.KindCorruptState, "failed to create backup directory")
	}
	return s.writeAtomic(path, []byte(tip.String()+"\n"))
}

// ReadBackups returns every branch→tip pair recorded for opID.
func (s *Store) ReadBackups(opID string) (map[model.BranchName]model.Commit, error) {
	root := filepath.Join(s.dir, backupsDirName, opID)
	out := map[model.BranchName]model.Commit{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".sha") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name, err := model.NewBranchName(strings.TrimSuffix(filepath.ToSlash(rel), ".sha"))
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tip, err := model.NewCommit(strings.TrimSpace(string(raw)))
		if err != nil {
			return err
		}
		out[name] = tip
		return nil
	})
	if os.IsNotExist(err) {
		return nil, errs.New(errs.KindNothingToUndo, "no backups found for operation %s", opID)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to read backups for %s", opID)
	}
	return out, nil
}

// DeleteBackups removes the backup directory for opID.
func (s *Store) DeleteBackups(opID string) error {
	if err := os.RemoveAll(filepath.Join(s.dir, backupsDirName, opID)); err != nil {
		return errs.Wrap(err, errs.KindCorruptState, "failed to delete backups for %s", opID)
	}
	return nil
}

func (s *Store) backupPath(opID string, branch model.BranchName) string {
	return filepath.Join(s.dir, backupsDirName, opID, filepath.FromSlash(branch.String())+".sha")
}

// === Undo slot ===

// SaveUndo arms the single undo slot.
func (s *Store) SaveUndo(rec *model.UndoRecord) error {
	data, err := encodeUndo(rec)
	if err != nil {
		return err
	}
	return s.writeAtomic(s.undoPath(), data)
}

// LoadUndo returns the armed undo record, or NothingToUndo.
func (s *Store) LoadUndo() (*model.UndoRecord, error) {
	raw, err := os.ReadFile(s.undoPath())
	if os.IsNotExist(err) {
		return nil, errs.New(errs.KindNothingToUndo, "no sync to undo").
			WithSuggestion("undo is only available after a completed sync")
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.KindCorruptState, "failed to read %s", undoFileName)
	}
	return decodeUndo(raw)
}

// ClearUndo disarms the undo slot, removing its backups too.
func (s *Store) ClearUndo() error {
	rec, err := s.LoadUndo()
	if err != nil {
		if errs.Is(err, errs.KindNothingToUndo) {
			return nil
		}
		return err
	}
	if err := s.DeleteBackups(rec.OpID); err != nil {
		logs.Warn("Failed to delete undo backups: %v", err)
	}
	if err := os.Remove(s.undoPath()); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.KindCorruptState, "failed to clear %s", undoFileName)
	}
	return nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.KindCorruptState, "failed to create %s", filepath.Dir(path))
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errs.Wrap(err, errs.KindCorruptState, "failed to write %s", filepath.Base(path))
	}
	return nil
}
