package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/ravi-parthasarathy/megpipe/pkg/checkpoint"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

type handlerFunc func(ctx context.Context, node *Node, run *Run) error

func (f handlerFunc) Handle(ctx context.Context, node *Node, run *Run) error {
	return f(ctx, node, run)
}

type mapRegistry map[StageType]Handler

func (m mapRegistry) Get(st StageType) (Handler, error) {
	h, ok := m[st]
	if !ok {
		return nil, fmt.Errorf("no handler for %q", st)
	}
	return h, nil
}

func testRecording() *recording.Recording {
	return &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Data:       [][]float64{{1, 2, 3, 4}},
	}
}

// loadStub installs a fake import handler producing a fixed recording.
func loadStub() handlerFunc {
	return func(_ context.Context, _ *Node, run *Run) error {
		run.Rec = testRecording()
		return nil
	}
}

// doubleStub scales every sample by two, standing in for a real transform.
func doubleStub() handlerFunc {
	return func(_ context.Context, _ *Node, run *Run) error {
		out := run.Rec.Clone()
		for ci := range out.Data {
			for i := range out.Data[ci] {
				out.Data[ci][i] *= 2
			}
		}
		run.Rec = out
		return nil
	}
}

func testStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir(), "sub01", "ses01")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func mustParse(t *testing.T, src string) *Pipeline {
	t.Helper()
	p, err := ParseDOT(src)
	if err != nil {
		t.Fatalf("ParseDOT: %v", err)
	}
	return p
}

const linearDOT = `
digraph test {
	load [type="import", source="x", checkpoint="raw"];
	a [type="reref", checkpoint="step_a"];
	b [type="reref"];
	load -> a -> b;
}
`

func TestExecuteLinearRun(t *testing.T) {
	p := mustParse(t, linearDOT)
	reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}
	store := testStore(t)

	var events []EventType
	eng, err := NewEngine(p, reg, store, WithObserver(func(ev Event) {
		events = append(events, ev.Type)
	}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := NewRun("sub01", "ses01", nil)
	report, err := eng.Execute(context.Background(), run, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Status != StatusComplete {
		t.Errorf("status = %q, want complete", report.Status)
	}
	if want := []string{"load", "a", "b"}; !reflect.DeepEqual(report.StagesRun, want) {
		t.Errorf("stages run = %v, want %v", report.StagesRun, want)
	}
	if report.LastCheckpoint != "step_a" {
		t.Errorf("last checkpoint = %q, want step_a", report.LastCheckpoint)
	}
	if !store.Exists("raw") || !store.Exists("step_a") {
		t.Error("checkpoint files missing")
	}
	// load ran once, each reref doubled once: 1*2*2 = 4.
	if got := run.Rec.Data[0][0]; got != 4 {
		t.Errorf("data[0][0] = %g, want 4", got)
	}
	if events[0] != EventStageStarted || events[len(events)-1] != EventRunCompleted {
		t.Errorf("unexpected event sequence: %v", events)
	}
}

func TestExecuteFailFastCarriesRecoveryPoint(t *testing.T) {
	p := mustParse(t, linearDOT)
	boom := errors.New("bad channel math")
	reg := mapRegistry{
		StageImport: loadStub(),
		StageReref: handlerFunc(func(_ context.Context, node *Node, _ *Run) error {
			if node.ID == "b" {
				return boom
			}
			return nil
		}),
	}
	store := testStore(t)
	eng, err := NewEngine(p, reg, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	report, err := eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), "")
	if err == nil {
		t.Fatal("expected failure")
	}
	var serr *StageExecutionError
	if !errors.As(err, &serr) {
		t.Fatalf("got %T, want *StageExecutionError", err)
	}
	if serr.Stage != "b" {
		t.Errorf("failed stage = %q, want b", serr.Stage)
	}
	if serr.LastStage != "a" {
		t.Errorf("last stage = %q, want a", serr.LastStage)
	}
	if serr.LastCheckpoint != "step_a" {
		t.Errorf("last checkpoint = %q, want step_a", serr.LastCheckpoint)
	}
	if serr.CheckpointPath == "" {
		t.Error("checkpoint path empty")
	}
	if !errors.Is(err, boom) {
		t.Error("cause not wrapped")
	}
	if report.Status != StatusFailed {
		t.Errorf("status = %q, want failed", report.Status)
	}
	// Stage b never produced a checkpoint; step_a is intact for resume.
	if !store.Exists("step_a") {
		t.Error("recovery checkpoint missing")
	}
}

func TestResumeMatchesFreshRun(t *testing.T) {
	p := mustParse(t, linearDOT)
	reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}

	store := testStore(t)
	eng, err := NewEngine(p, reg, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fresh := NewRun("sub01", "ses01", nil)
	if _, err := eng.Execute(context.Background(), fresh, ""); err != nil {
		t.Fatalf("fresh run: %v", err)
	}

	// Resume from the import checkpoint: skips load, replays a and b.
	resumed := NewRun("sub01", "ses01", nil)
	report, err := eng.Execute(context.Background(), resumed, "raw")
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if report.Status != StatusComplete {
		t.Errorf("status = %q, want complete", report.Status)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(report.StagesRun, want) {
		t.Errorf("stages run = %v, want %v", report.StagesRun, want)
	}
	if !reflect.DeepEqual(fresh.Rec.Data, resumed.Rec.Data) {
		t.Errorf("resumed data %v != fresh data %v", resumed.Rec.Data, fresh.Rec.Data)
	}
}

func TestResumeFromTerminalCheckpoint(t *testing.T) {
	p := mustParse(t, `
		digraph g {
			load [type="import", source="x"];
			last [type="reref", checkpoint="final"];
			load -> last;
		}
	`)
	reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}
	store := testStore(t)
	eng, err := NewEngine(p, reg, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), ""); err != nil {
		t.Fatalf("fresh run: %v", err)
	}

	report, err := eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), "final")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if report.Status != StatusComplete {
		t.Errorf("status = %q, want complete", report.Status)
	}
	if len(report.StagesRun) != 0 {
		t.Errorf("stages run = %v, want none", report.StagesRun)
	}
}

func TestResumeMissingCheckpoint(t *testing.T) {
	p := mustParse(t, linearDOT)
	reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}
	eng, err := NewEngine(p, reg, testStore(t))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	// Declared checkpoint, but no snapshot saved yet.
	_, err = eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), "step_a")
	var nf *checkpoint.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("got %v, want NotFoundError", err)
	}

	// Checkpoint name no stage declares.
	_, err = eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), "nope")
	if err == nil || errors.As(err, &nf) {
		t.Errorf("undeclared checkpoint: got %v", err)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	p := mustParse(t, linearDOT)
	reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}
	eng, err := NewEngine(p, reg, testStore(t))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := eng.Execute(ctx, NewRun("sub01", "ses01", nil), "")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", err)
	}
	if report.Status != StatusFailed {
		t.Errorf("status = %q, want failed", report.Status)
	}
}

func TestExecuteGuardedBranch(t *testing.T) {
	p := mustParse(t, `
		digraph g {
			load [type="import", source="x"];
			meg [type="reref"];
			eeg [type="select", include="EEG"];
			load -> meg [label="modality == 'meg'"];
			load -> eeg [label="modality == 'eeg'"];
		}
	`)
	visited := map[string]bool{}
	mark := handlerFunc(func(_ context.Context, node *Node, run *Run) error {
		if run.Rec == nil {
			run.Rec = testRecording()
		}
		visited[node.ID] = true
		return nil
	})
	reg := mapRegistry{StageImport: mark, StageReref: mark, StageSelect: mark}
	eng, err := NewEngine(p, reg, testStore(t))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := NewRun("sub01", "ses01", map[string]string{"modality": "meg"})
	if _, err := eng.Execute(context.Background(), run, ""); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !visited["meg"] || visited["eeg"] {
		t.Errorf("wrong branch taken: %v", visited)
	}
}

func TestExecuteSavesDerivedCheckpoints(t *testing.T) {
	p := mustParse(t, `
		digraph g {
			load [type="import", source="x"];
			cut [type="epoch", conditions="Famous,Scrambled", start_s="-0.1", end_s="0.1", checkpoint="epoched"];
			load -> cut;
		}
	`)
	epochStub := handlerFunc(func(_ context.Context, _ *Node, run *Run) error {
		for _, label := range []string{"Famous", "Scrambled"} {
			rec := run.Rec.Clone()
			rec.Data = nil
			rec.Trials = [][][]float64{{{1, 2}}}
			run.Derived[label] = rec
		}
		return nil
	})
	reg := mapRegistry{StageImport: loadStub(), StageEpoch: epochStub}
	store := testStore(t)
	eng, err := NewEngine(p, reg, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Execute(context.Background(), NewRun("sub01", "ses01", nil), ""); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, name := range []string{"epoched", "epoched_Famous", "epoched_Scrambled"} {
		if !store.Exists(name) {
			t.Errorf("checkpoint %q missing", name)
		}
	}

	// Resume recovers the per-condition snapshots too.
	resumed := NewRun("sub01", "ses01", nil)
	if _, err := eng.Execute(context.Background(), resumed, "epoched"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(resumed.Derived) != 2 {
		t.Errorf("derived recordings after resume = %d, want 2", len(resumed.Derived))
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	items := []BatchItem{
		{Subject: "sub01", Session: "ses01"},
		{Subject: "sub02", Session: "ses01"},
		{Subject: "sub03", Session: "ses01"},
	}
	p := mustParse(t, linearDOT)
	dir := t.TempDir()

	build := func(item BatchItem) (*Engine, *Run, error) {
		if item.Subject == "sub02" {
			return nil, nil, errors.New("no raw data for sub02")
		}
		store, err := checkpoint.NewFileStore(dir, item.Subject, item.Session)
		if err != nil {
			return nil, nil, err
		}
		reg := mapRegistry{StageImport: loadStub(), StageReref: doubleStub()}
		eng, err := NewEngine(p, reg, store)
		if err != nil {
			return nil, nil, err
		}
		return eng, NewRun(item.Subject, item.Session, nil), nil
	}

	results := RunBatch(context.Background(), items, build)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("healthy subjects failed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("sub02 should have failed")
	}
	if results[0].Report.Status != StatusComplete {
		t.Errorf("sub01 status = %q", results[0].Report.Status)
	}
}
