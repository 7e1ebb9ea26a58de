package stages

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

func node(typ pipeline.StageType, attrs map[string]string) *pipeline.Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &pipeline.Node{ID: "test_" + string(typ), Type: typ, Attrs: attrs}
}

// continuousRec builds a 2-signal-channel recording at 100 Hz with events.
func continuousRec(nSamples int, events ...recording.Event) *recording.Recording {
	data := make([][]float64, 2)
	for ci := range data {
		data[ci] = make([]float64, nSamples)
	}
	return &recording.Recording{
		Subject:    "sub01",
		Session:    "ses01",
		SampleRate: 100,
		Channels: []recording.Channel{
			{Label: "MEG001", Type: recording.ChannelSignal},
			{Label: "MEG002", Type: recording.ChannelSignal},
		},
		Data:   data,
		Events: events,
	}
}

func newRun(rec *recording.Recording) *pipeline.Run {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.Rec = rec
	return run
}

func TestImportStageEndToEnd(t *testing.T) {
	// Fixture: 2 s at 1 kHz with an encoded trigger channel. Pulses at
	// 100 ms (code 5), 300 ms (raw 4102, low 5 bits → 6), 500 ms (code 20,
	// unmatched), plus a 2-sample glitch at 700 ms that must not register.
	nSamples := 2000
	trig := make([]float64, nSamples)
	for i := 100; i < 120; i++ {
		trig[i] = 5
	}
	for i := 300; i < 320; i++ {
		trig[i] = 4102
	}
	for i := 500; i < 520; i++ {
		trig[i] = 20
	}
	trig[700], trig[701] = 7, 7

	fixture := &recording.Recording{
		SampleRate: 1000,
		Channels: []recording.Channel{
			{Label: "MEG001", Type: recording.ChannelSignal},
			{Label: "EEG061", Type: recording.ChannelUnknown},
			{Label: "STI101", Type: recording.ChannelUnknown},
		},
		Data: [][]float64{make([]float64, nSamples), make([]float64, nSamples), trig},
	}
	data, err := json.Marshal(fixture)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub01_ses01.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	n := node(pipeline.StageImport, map[string]string{
		"source":          filepath.Join(dir, "{subject}_{session}.json"),
		"types":           "EEG061=ocular",
		"trigger_channel": "STI101",
		"min_edge_len":    "5",
		"rename":          "5,6,7=Famous;13,14,15=Unfamiliar;17,18,19=Scrambled",
		"unmatched":       "drop",
		"shift_ms":        "34.5",
	})
	run := pipeline.NewRun("sub01", "ses01", nil)
	stage := &ImportStage{Importer: &JSONImporter{}}
	if err := stage.Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	rec := run.Rec
	if got := rec.Channels[rec.ChannelIndex("EEG061")].Type; got != recording.ChannelOcular {
		t.Errorf("EEG061 type = %q, want ocular", got)
	}
	// Codes 5 and 6 rename to Famous; 20 is dropped; the glitch is too short.
	if len(rec.Events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(rec.Events), rec.Events)
	}
	for _, ev := range rec.Events {
		if ev.Label != "Famous" {
			t.Errorf("event label = %q, want Famous", ev.Label)
		}
	}
	if got := rec.Events[0].TimeMs; got != 100+34.5 {
		t.Errorf("first event at %gms, want 134.5", got)
	}
	if got := rec.Events[1].TimeMs; got != 300+34.5 {
		t.Errorf("second event at %gms, want 334.5", got)
	}
}

func TestImportStageMissingSource(t *testing.T) {
	n := node(pipeline.StageImport, map[string]string{
		"source": filepath.Join(t.TempDir(), "absent.json"),
	})
	stage := &ImportStage{Importer: &JSONImporter{}}
	err := stage.Handle(context.Background(), n, pipeline.NewRun("sub01", "ses01", nil))
	var ierr *pipeline.ImportError
	if !errors.As(err, &ierr) {
		t.Fatalf("got %v, want ImportError", err)
	}
	if ierr.Path == "" {
		t.Error("ImportError carries no path")
	}
}

func TestImportStageUnknownTriggerChannel(t *testing.T) {
	fixture := continuousRec(100)
	data, _ := json.Marshal(fixture)
	path := filepath.Join(t.TempDir(), "raw.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	n := node(pipeline.StageImport, map[string]string{
		"source":          path,
		"trigger_channel": "STI999",
	})
	stage := &ImportStage{Importer: &JSONImporter{}}
	err := stage.Handle(context.Background(), n, pipeline.NewRun("sub01", "ses01", nil))
	var merr *pipeline.MetadataError
	if !errors.As(err, &merr) {
		t.Fatalf("got %v, want MetadataError", err)
	}
}

func TestSelectStageByTypeAndPrefix(t *testing.T) {
	rec := &recording.Recording{
		Subject:    "sub01",
		Session:    "ses01",
		SampleRate: 100,
		Channels: []recording.Channel{
			{Label: "MEG001", Type: recording.ChannelSignal},
			{Label: "EEG010", Type: recording.ChannelSignal},
			{Label: "EEG061", Type: recording.ChannelOcular},
			{Label: "STI101", Type: recording.ChannelUnknown},
		},
		Data: [][]float64{{1}, {2}, {3}, {4}},
	}
	run := newRun(rec)
	n := node(pipeline.StageSelect, map[string]string{"include": "MEG, ocular"})
	if err := (&SelectStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(run.Rec.Channels) != 2 {
		t.Fatalf("kept %d channels, want 2", len(run.Rec.Channels))
	}
	if run.Rec.Channels[0].Label != "MEG001" || run.Rec.Channels[1].Label != "EEG061" {
		t.Errorf("kept %v", run.Rec.Channels)
	}
}

func TestSelectStageNoMatch(t *testing.T) {
	run := newRun(continuousRec(10))
	n := node(pipeline.StageSelect, map[string]string{"include": "GRAD"})
	err := (&SelectStage{}).Handle(context.Background(), n, run)
	var serr *recording.InvalidSelectorError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want InvalidSelectorError", err)
	}
}

func TestEpochStageFanOut(t *testing.T) {
	// 10 s at 100 Hz; events per condition well inside the buffer, plus one
	// Famous event whose window would run past the start.
	rec := continuousRec(1000,
		recording.Event{TimeMs: 100, Label: "Famous"}, // window starts at -400ms: out of range
		recording.Event{TimeMs: 2000, Label: "Famous"},
		recording.Event{TimeMs: 4000, Label: "Famous"},
		recording.Event{TimeMs: 6000, Label: "Scrambled"},
	)
	// Make samples identifiable: channel 0 carries the sample index.
	for i := range rec.Data[0] {
		rec.Data[0][i] = float64(i)
	}
	run := newRun(rec)
	n := node(pipeline.StageEpoch, map[string]string{
		"conditions": "Famous,Scrambled",
		"start_s":    "-0.5",
		"end_s":      "1.2",
	})
	if err := (&EpochStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	famous := run.Derived["Famous"]
	if famous.NumTrials() != 2 {
		t.Fatalf("Famous trials = %d, want 2 (one out of range)", famous.NumTrials())
	}
	if run.Derived["Scrambled"].NumTrials() != 1 {
		t.Errorf("Scrambled trials = %d, want 1", run.Derived["Scrambled"].NumTrials())
	}
	// -0.5..1.2 s at 100 Hz = 170 samples per trial.
	if got := famous.NumSamples(); got != 170 {
		t.Errorf("trial length = %d samples, want 170", got)
	}
	// The first kept trial starts at 2000ms - 500ms = sample 150.
	if got := famous.Trials[0][0][0]; got != 150 {
		t.Errorf("first trial starts at sample %g, want 150", got)
	}
	if run.Count("Famous").Before != 2 {
		t.Errorf("Famous before-count = %d", run.Count("Famous").Before)
	}
	if run.EpochStartS != -0.5 || run.EpochEndS != 1.2 {
		t.Errorf("epoch window = %g..%g", run.EpochStartS, run.EpochEndS)
	}
	// The continuous recording is untouched by the fan-out.
	if run.Rec.Epoched() {
		t.Error("continuous recording became epoched")
	}
}

func TestBaselineStageZeroesWindowMean(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.EpochStartS, run.EpochEndS = -0.2, 0.8
	trial := [][]float64{make([]float64, 100)}
	for i := range trial[0] {
		trial[0][i] = 10 // constant offset
	}
	run.Derived["Famous"] = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Trials:     [][][]float64{trial},
	}

	n := node(pipeline.StageBaseline, map[string]string{"start_s": "-0.2", "end_s": "0"})
	if err := (&BaselineStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for i, v := range run.Derived["Famous"].Trials[0][0] {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("sample %d = %g after baseline, want 0", i, v)
		}
	}
}

func TestBaselineStageRejectsWindowOutsideEpoch(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.EpochStartS, run.EpochEndS = -0.2, 0.8
	run.Derived["Famous"] = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Trials:     [][][]float64{{make([]float64, 100)}},
	}
	n := node(pipeline.StageBaseline, map[string]string{"start_s": "-0.5", "end_s": "0"})
	if err := (&BaselineStage{}).Handle(context.Background(), n, run); err == nil {
		t.Fatal("expected out-of-window error")
	}
}

func TestRejectStageAmplitudeBounds(t *testing.T) {
	mkTrial := func(peak float64) [][]float64 {
		tr := [][]float64{make([]float64, 50)}
		tr[0][25] = peak
		return tr
	}
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.Derived["Famous"] = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "EEG010", Type: recording.ChannelSignal}},
		// One trial peaking at 450 µV (rejected), one at 399 (kept), one at
		// -401 (rejected), one exactly at the 400 bound (kept).
		Trials: [][][]float64{mkTrial(450), mkTrial(399), mkTrial(-401), mkTrial(400)},
	}
	run.Count("Famous").Before = 4

	n := node(pipeline.StageReject, map[string]string{"min_uv": "-400", "max_uv": "400"})
	if err := (&RejectStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rec := run.Derived["Famous"]
	if rec.NumTrials() != 2 {
		t.Fatalf("kept %d trials, want 2", rec.NumTrials())
	}
	if rec.Trials[0][0][25] != 399 || rec.Trials[1][0][25] != 400 {
		t.Errorf("wrong trials kept: peaks %g, %g", rec.Trials[0][0][25], rec.Trials[1][0][25])
	}
	if got := run.Count("Famous").After; got != 2 {
		t.Errorf("after-count = %d, want 2", got)
	}
}

func TestAverageStageCollapsesTrials(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.Derived["Famous"] = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Trials: [][][]float64{
			{{1, 2, 3}},
			{{3, 4, 5}},
		},
	}
	n := node(pipeline.StageAverage, nil)
	if err := (&AverageStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rec := run.Derived["Famous"]
	if rec.Epoched() {
		t.Fatal("average output still epoched")
	}
	want := []float64{2, 3, 4}
	for i, v := range rec.Data[0] {
		if v != want[i] {
			t.Errorf("evoked[%d] = %g, want %g", i, v, want[i])
		}
	}
}

func TestAverageStageEmptyCondition(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.Derived["Famous"] = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Trials:     [][][]float64{},
	}
	if err := (&AverageStage{}).Handle(context.Background(), node(pipeline.StageAverage, nil), run); err == nil {
		t.Fatal("expected error for empty condition")
	}
}

func TestStagesRequireEpochedInput(t *testing.T) {
	run := newRun(continuousRec(10))
	for _, h := range []pipeline.Handler{&BaselineStage{}, &RejectStage{}, &AverageStage{}} {
		if err := h.Handle(context.Background(), node(pipeline.StageAverage, nil), run); err == nil {
			t.Errorf("%T accepted a run without epochs", h)
		}
	}
}

func TestContinuousStagesRejectEpochedInput(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", nil)
	run.Rec = &recording.Recording{
		SampleRate: 100,
		Channels:   []recording.Channel{{Label: "MEG001", Type: recording.ChannelSignal}},
		Trials:     [][][]float64{{make([]float64, 10)}},
	}
	n := node(pipeline.StageFilter, map[string]string{"highpass_hz": "1"})
	if err := (&FilterStage{Filter: nil}).Handle(context.Background(), n, run); err == nil {
		t.Fatal("filter accepted epoched data")
	}
}

func TestReportStageWritesWorkbook(t *testing.T) {
	run := pipeline.NewRun("sub01", "ses01", map[string]string{"pipeline": "faces"})
	run.DroppedChannels = []string{"EEG003"}
	run.DroppedComponents = []int{2, 7}
	run.Count("Famous").Before = 140
	run.Count("Famous").After = 131

	dir := t.TempDir()
	n := node(pipeline.StageReport, map[string]string{
		"path": filepath.Join(dir, "{subject}", "{session}_qc.xlsx"),
	})
	if err := (&ReportStage{}).Handle(context.Background(), n, run); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := filepath.Join(dir, "sub01", "ses01_qc.xlsx")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("workbook not written: %v", err)
	}
}
