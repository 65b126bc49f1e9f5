// Package storage keeps trace runs on disk, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
)

var sampleHeader = []string{"time_ms", "delta", "x", "y", "z", "velocity", "grounded"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Body        int                `json:"body"`
	MaxID       int                `json:"max_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	IntervalMs  float64            `json:"interval_ms"`
	Queries     int                `json:"queries"`
	Samples     int                `json:"samples"`
	Gravity     float32            `json:"gravity"`
	Scale       float32            `json:"scale"`
	Restitution float32            `json:"restitution"`
	RestSpeed   float32            `json:"rest_speed"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Row is one line of samples.csv.
type Row struct {
	TimeMs   float64 `json:"time_ms"`
	Delta    float64 `json:"delta"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Velocity float64 `json:"velocity"`
	Grounded bool    `json:"grounded"`
}

// NewMetadata describes a finished run of cfg.
func NewMetadata(cfg experiment.Config, result *experiment.Result) RunMetadata {
	now := time.Now()
	return RunMetadata{
		ID:          fmt.Sprintf("body%d_%d", cfg.Body, now.UnixNano()),
		Body:        cfg.Body,
		MaxID:       cfg.MaxID,
		Timestamp:   now,
		Seed:        cfg.Seed,
		IntervalMs:  float64(cfg.Interval) / float64(time.Millisecond),
		Queries:     cfg.Queries,
		Samples:     len(result.Samples),
		Gravity:     cfg.Physics.Gravity,
		Scale:       cfg.Physics.Scale,
		Restitution: cfg.Physics.Restitution,
		RestSpeed:   cfg.Physics.RestSpeed,
		Metrics:     result.Metrics,
	}
}

func (s *Store) Save(meta RunMetadata, result *experiment.Result) (string, error) {
	if meta.ID == "" {
		return "", errors.New("storage: run id is empty")
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, samplesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(sampleHeader); err != nil {
		return "", err
	}
	for i, smp := range result.Samples {
		row := []string{
			formatFloat(result.Times[i]),
			formatFloat(float64(smp.Delta)),
			formatFloat(float64(smp.Transform[dynamo.CellX])),
			formatFloat(float64(smp.Transform[dynamo.CellY])),
			formatFloat(float64(smp.Transform[dynamo.CellZ])),
			formatFloat(float64(smp.Velocity)),
			strconv.FormatBool(smp.Grounded),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first. Directories without a
// valid metadata file are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSamples(runID string) ([]Row, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(sampleHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read samples for %s: %w", runID, err)
	}
	if len(records) < 2 {
		return []Row{}, nil
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("samples for %s, line %d: %w", runID, i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExportJSON writes a run's metadata and samples as one indented document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	rows, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*RunMetadata
		Trace []Row `json:"trace"`
	}{meta, rows})
}

func parseRow(rec []string) (Row, error) {
	var vals [6]float64
	for i := range vals {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			return Row{}, err
		}
		vals[i] = v
	}
	grounded, err := strconv.ParseBool(rec[6])
	if err != nil {
		return Row{}, err
	}
	return Row{
		TimeMs:   vals[0],
		Delta:    vals[1],
		X:        vals[2],
		Y:        vals[3],
		Z:        vals[4],
		Velocity: vals[5],
		Grounded: grounded,
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
