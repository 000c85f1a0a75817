package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"audiomill/internal/api"
	"audiomill/internal/daemon"
	"audiomill/internal/pipeline"
	"audiomill/internal/progress"
	"audiomill/internal/tasks"
	"audiomill/internal/testsupport"
)

type completeRunner struct {
	store *progress.Store
}

func (r completeRunner) Run(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
	if err := r.store.SetTotal(job.TaskID, 1); err != nil {
		return pipeline.Result{}, err
	}
	r.store.Increment(job.TaskID)
	return pipeline.Result{OutputPath: "/out/x.mp3", Segments: 1}, nil
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := progress.NewStore()
	sup := tasks.New(store, completeRunner{store: store}, tasks.Options{WorkDir: cfg.Paths.WorkDir})
	d, err := daemon.New(cfg, daemon.Options{Supervisor: sup})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	if !d.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	otherSup := tasks.New(progress.NewStore(), completeRunner{store: progress.NewStore()}, tasks.Options{WorkDir: cfg.Paths.WorkDir})
	other, err := daemon.New(cfg, daemon.Options{Supervisor: otherSup})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop(ctx)
		t.Fatal("expected lock contention to block a second daemon")
	}

	d.Stop(ctx)
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonServesClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("token"))
	store := progress.NewStore()
	sup := tasks.New(store, completeRunner{store: store}, tasks.Options{WorkDir: cfg.Paths.WorkDir})
	d, err := daemon.New(cfg, daemon.Options{Supervisor: sup})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { d.Stop(ctx) })

	client, err := api.NewClient(d.Addr().String(), "token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	input := filepath.Join(testsupport.BaseDir(cfg), "clip.mp4")
	testsupport.WriteFile(t, input, 1024)

	id, err := client.Upload(ctx, input)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		msg, err := client.Progress(ctx, id)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if msg == progress.MessageCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed, last status %q", msg)
		}
		time.Sleep(20 * time.Millisecond)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.Tasks.Completed != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	unauth, err := api.NewClient(d.Addr().String(), "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = unauth.Progress(ctx, id)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 401 {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}
