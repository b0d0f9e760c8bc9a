package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/git"
	"github.com/k4r01q/rung/internal/service"
	"github.com/k4r01q/rung/internal/store"
	"github.com/k4r01q/rung/internal/ui"
)

// openStore locates the repository and its state directory without loading
// state. Used by `rung init`.
func openStore() (*git.CLI, *store.Store, error) {
	g := git.NewCLI("")
	if !g.IsRepo() {
		return nil, nil, errs.New(errs.KindUsage, "not inside a git repository")
	}
	gitDir, err := g.GitDir()
	if err != nil {
		return nil, nil, err
	}
	return g, store.Open(gitDir), nil
}

// openService takes the repository lock (shared for read-only commands,
// exclusive for mutators), loads the state, and returns the wired service.
// The returned release function must be deferred.
func openService(exclusive bool) (*service.Service, func(), error) {
	g, st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if err := st.Lock(exclusive); err != nil {
		return nil, nil, err
	}
	svc := service.New(st, g)
	if err := svc.Load(); err != nil {
		st.Unlock()
		return nil, nil, err
	}
	ui.SetNoColor(svc.Config().NoColor)
	return svc, st.Unlock, nil
}

// printJSON emits v as indented JSON on stdout.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
