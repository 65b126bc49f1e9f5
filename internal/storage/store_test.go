package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/lazyfall/internal/experiment"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/sim"
)

func testRun(t *testing.T) (experiment.Config, *experiment.Result) {
	t.Helper()
	cfg := experiment.Config{
		Body:       1,
		MaxID:      4,
		Interval:   100 * time.Millisecond,
		Queries:    5,
		Seed:       42,
		Spawn:      sim.DefaultSpawn(),
		Physics:    integrators.DefaultParams(),
		StopOnRest: false,
	}
	res := &experiment.Result{
		Body:    1,
		Times:   []float64{0, 100},
		Samples: make([]sim.Sample, 2),
		Metrics: map[string]float64{"bounces": 0, "landed_at_ms": 100},
	}
	res.Samples[0].Transform[12] = -3
	res.Samples[0].Transform[13] = 0.5
	res.Samples[0].Transform[14] = 1.2
	res.Samples[1].Transform[13] = 0
	res.Samples[1].Delta = 6
	res.Samples[1].Velocity = 0
	res.Samples[1].Grounded = true
	return cfg, res
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg, res := testRun(t)
	runID, err := st.Save(NewMetadata(cfg, res), res)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Body != 1 || meta.Seed != 42 || meta.Samples != 2 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.IntervalMs != 100 {
		t.Errorf("expected interval 100ms, got %v", meta.IntervalMs)
	}
	if meta.Metrics["landed_at_ms"] != 100 {
		t.Errorf("expected landed_at_ms 100, got %v", meta.Metrics["landed_at_ms"])
	}

	rows, err := st.LoadSamples(runID)
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].X != -3 || rows[0].Y != 0.5 || rows[0].Grounded {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].TimeMs != 100 || rows[1].Delta != 6 || !rows[1].Grounded {
		t.Errorf("unexpected second row %+v", rows[1])
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty list, got %v, %v", runs, err)
	}

	cfg, res := testRun(t)
	first := NewMetadata(cfg, res)
	first.ID = "first"
	second := NewMetadata(cfg, res)
	second.ID = "second"
	second.Timestamp = first.Timestamp.Add(time.Second)

	for _, m := range []RunMetadata{second, first} {
		if _, err := st.Save(m, res); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "first" || runs[1].ID != "second" {
		t.Errorf("expected [first second], got %v", runs)
	}
}

func TestStoreErrors(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	_, res := testRun(t)

	if _, err := st.Save(RunMetadata{}, res); err == nil {
		t.Error("expected error for empty run id")
	}
	if _, err := st.Load("missing"); err == nil {
		t.Error("expected error for missing run")
	}

	if err := os.MkdirAll(filepath.Join(dir, "bad"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad", samplesFile), []byte("time_ms,delta,x,y,z,velocity,grounded\n1,2,3,4,5,6,maybe\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadSamples("bad"); err == nil {
		t.Error("expected error for malformed row")
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	cfg, res := testRun(t)
	runID, err := st.Save(NewMetadata(cfg, res), res)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportJSON(&buf, runID); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		ID    string `json:"id"`
		Body  int    `json:"body"`
		Trace []Row  `json:"trace"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != runID || doc.Body != 1 || len(doc.Trace) != 2 {
		t.Errorf("unexpected export %+v", doc)
	}
}
