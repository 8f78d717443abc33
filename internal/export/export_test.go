package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/storage"
	"github.com/san-kum/mpcdrive/internal/track"
)

func drive(tr *track.Track, n int) *sim.Result {
	result := &sim.Result{Track: tr.Name, Metrics: map[string]float64{"cte_rms": 0.3}}
	for i := 0; i < n; i++ {
		pt := tr.Points[i%tr.Len()]
		result.Samples = append(result.Samples, dynamo.Sample{
			Tick:       i,
			Time:       float64(i) * 0.1,
			Pose:       dynamo.Pose{X: pt.X + 0.2, Y: pt.Y, V: 10},
			TrackError: 0.2,
			Command:    dynamo.Command{Steering: 0.05, Throttle: 0.5},
		})
	}
	return result
}

func TestSavePlots(t *testing.T) {
	tr := track.Oval(60, 30, 40)
	result := drive(tr, 40)

	for _, format := range []string{"png", "svg"} {
		t.Run(format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "plots")
			files, err := SavePlots(dir, format, tr, result)
			require.NoError(t, err)
			require.Len(t, files, 2)
			for _, f := range files {
				info, err := os.Stat(f)
				require.NoError(t, err)
				assert.Positive(t, info.Size())
			}
		})
	}
}

func TestSavePlotsRejects(t *testing.T) {
	tr := track.Straight(100, 5)

	_, err := SavePlots(t.TempDir(), "bmp", tr, drive(tr, 10))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

	_, err = SavePlots(t.TempDir(), "png", tr, &sim.Result{})
	assert.ErrorIs(t, err, ErrEmptyRun)
}

func TestWriteJSON(t *testing.T) {
	tr := track.Straight(100, 5)
	result := drive(tr, 3)
	result.Errors = []error{&dynamo.TickError{Tick: 1, Time: 0.1, Wrapped: dynamo.ErrSolverFailed}}
	meta := storage.NewMetadata("mpc", "rk4", sim.Config{Period: 0.1}, result)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, meta, result))

	var data Data
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, meta.ID, data.ID)
	assert.Equal(t, "mpc", data.Controller)
	assert.Len(t, data.Times, 3)
	assert.Equal(t, [2]float64{0.05, 0.5}, data.Commands[2])
	assert.InDelta(t, 10.2, data.Poses[2][0], 1e-9)
	require.Len(t, data.Errors, 1)
	assert.Contains(t, data.Errors[0], "tick 1")
}
