package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/sim"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
)

var sampleHeader = []string{
	"tick", "time", "x", "y", "psi", "v", "track_error",
	"steering", "throttle", "solve_ms", "skipped",
}

// Store keeps simulation runs on disk, one directory per run.
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
	ID         string             `json:"id"`
	Track      string             `json:"track"`
	Controller string             `json:"controller"`
	Integrator string             `json:"integrator"`
	Timestamp  time.Time          `json:"timestamp"`
	Period     float64            `json:"period"`
	Duration   float64            `json:"duration"`
	Ticks      int                `json:"ticks"`
	Skipped    int                `json:"skipped"`
	Finished   bool               `json:"finished"`
	Metrics    map[string]float64 `json:"metrics"`
}

// NewMetadata summarises a run.
func NewMetadata(controller, integrator string, cfg sim.Config, result *sim.Result) RunMetadata {
	return RunMetadata{
		ID:         fmt.Sprintf("%s_%s", result.Track, uuid.NewString()[:8]),
		Track:      result.Track,
		Controller: controller,
		Integrator: integrator,
		Timestamp:  time.Now().UTC(),
		Period:     cfg.Period,
		Duration:   cfg.Duration,
		Ticks:      len(result.Samples),
		Skipped:    result.Skipped(),
		Finished:   result.Finished,
		Metrics:    result.Metrics,
	}
}

// Save writes the metadata and sample trace of a run and returns its ID.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
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

	if err := WriteSamples(csvFile, result.Samples); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// WriteSamples encodes a sample trace as CSV with a header row.
func WriteSamples(out io.Writer, samples []dynamo.Sample) error {
	w := csv.NewWriter(out)
	if err := w.Write(sampleHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Tick), f(s.Time),
			f(s.Pose.X), f(s.Pose.Y), f(s.Pose.Psi), f(s.Pose.V),
			f(s.TrackError), f(s.Command.Steering), f(s.Command.Throttle),
			f(float64(s.SolveTime.Microseconds()) / 1000),
			strconv.FormatBool(s.Skipped),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadSamples decodes a trace written by WriteSamples.
func ReadSamples(in io.Reader) ([]dynamo.Sample, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = len(sampleHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []dynamo.Sample{}, nil
	}

	samples := make([]dynamo.Sample, 0, len(records)-1)
	for line, record := range records[1:] {
		vals := make([]float64, 9)
		for j := range vals {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line+2, sampleHeader[j+1], err)
			}
			vals[j] = v
		}
		tick, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: tick: %w", line+2, err)
		}
		skipped, err := strconv.ParseBool(record[10])
		if err != nil {
			return nil, fmt.Errorf("line %d: skipped: %w", line+2, err)
		}

		samples = append(samples, dynamo.Sample{
			Tick:       tick,
			Time:       vals[0],
			Pose:       dynamo.Pose{X: vals[1], Y: vals[2], Psi: vals[3], V: vals[4]},
			TrackError: vals[5],
			Command:    dynamo.Command{Steering: vals[6], Throttle: vals[7]},
			SolveTime:  time.Duration(vals[8] * float64(time.Millisecond)),
			Skipped:    skipped,
		})
	}
	return samples, nil
}

// List returns stored runs, newest first. Unreadable entries are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSamples(runID string) ([]dynamo.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadSamples(file)
}
