package runlog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

func TestRunLifecycle(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	if err := log.BeginRun("run-1", "sub01", "ses01", "faces"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := log.StageDone("run-1", "filter", pipeline.StatusComplete, "", nil); err != nil {
		t.Fatalf("StageDone: %v", err)
	}
	if err := log.StageDone("run-1", "epoch", pipeline.StatusFailed, "/tmp/chk.json", errors.New("boom")); err != nil {
		t.Fatalf("StageDone: %v", err)
	}
	if err := log.EndRun("run-1", pipeline.StatusFailed, errors.New("boom")); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	runs, err := log.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != "run-1" || r.Subject != "sub01" || r.Pipeline != "faces" {
		t.Errorf("unexpected run record: %+v", r)
	}
	if r.Status != string(pipeline.StatusFailed) {
		t.Errorf("status = %q, want failed", r.Status)
	}
	if r.Error != "boom" {
		t.Errorf("error = %q, want boom", r.Error)
	}
}

func TestRunsEmptyLog(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	runs, err := log.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("got %d runs, want 0", len(runs))
	}
}
