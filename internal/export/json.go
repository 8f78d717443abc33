package export

import (
	"encoding/json"
	"io"

	"github.com/san-kum/mpcdrive/internal/sim"
	"github.com/san-kum/mpcdrive/internal/storage"
)

type Data struct {
	storage.RunMetadata
	Times    []float64    `json:"times"`
	Poses    [][4]float64 `json:"poses"`
	Commands [][2]float64 `json:"commands"`
	Errors   []string     `json:"errors,omitempty"`
}

// WriteJSON writes the run summary and its full trace.
func WriteJSON(w io.Writer, meta storage.RunMetadata, result *sim.Result) error {
	data := Data{
		RunMetadata: meta,
		Times:       make([]float64, len(result.Samples)),
		Poses:       make([][4]float64, len(result.Samples)),
		Commands:    make([][2]float64, len(result.Samples)),
	}
	for i, s := range result.Samples {
		data.Times[i] = s.Time
		data.Poses[i] = [4]float64{s.Pose.X, s.Pose.Y, s.Pose.Psi, s.Pose.V}
		data.Commands[i] = [2]float64{s.Command.Steering, s.Command.Throttle}
	}
	for _, err := range result.Errors {
		data.Errors = append(data.Errors, err.Error())
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
