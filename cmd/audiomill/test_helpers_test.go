package main

import (
	"bytes"
	"context"
	"testing"

	"audiomill/internal/config"
	"audiomill/internal/daemon"
	"audiomill/internal/logging"
	"audiomill/internal/pipeline"
	"audiomill/internal/progress"
	"audiomill/internal/tasks"
	"audiomill/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *progress.Store
	supervisor *tasks.Supervisor
	hub        *logging.StreamHub
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
}

// segmentRunner reports two segments and finishes with a fixed output path.
type segmentRunner struct {
	store *progress.Store
}

func (r segmentRunner) Run(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
	if err := r.store.SetTotal(job.TaskID, 2); err != nil {
		return pipeline.Result{}, err
	}
	r.store.Increment(job.TaskID)
	r.store.Increment(job.TaskID)
	return pipeline.Result{OutputPath: "/out/clip.mp3", Segments: 2}, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	return setupCLITestEnvWithConfig(t, testsupport.NewConfig(t))
}

func setupCLITestEnvWithConfig(t *testing.T, cfg *config.Config) *cliTestEnv {
	t.Helper()

	configPath := testsupport.WriteConfig(t, cfg)

	store := progress.NewStore()
	sup := tasks.New(store, segmentRunner{store: store}, tasks.Options{WorkDir: cfg.Paths.WorkDir})
	hub := logging.NewStreamHub(64)
	d, err := daemon.New(cfg, daemon.Options{Supervisor: sup, LogHub: hub, Workers: 2, Version: "test"})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		supervisor: sup,
		hub:        hub,
		daemon:     d,
		configPath: configPath,
		apiAddr:    d.Addr().String(),
	}
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, args, env.apiAddr, env.configPath)
	return out, err
}
