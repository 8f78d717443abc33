// Package telemetry encodes and decodes the simulator's socket.io event
// frames: a "42" prefix followed by a JSON array [event, payload].
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/san-kum/mpcdrive/internal/dynamo"
)

const eventPrefix = "42"

// Kind classifies an inbound frame.
type Kind int

const (
	// Ignore marks engine.io control frames and unknown events.
	Ignore Kind = iota
	// Telemetry carries a vehicle observation.
	Telemetry
	// Manual means the simulator is under manual control and wants an ack.
	Manual
)

func (k Kind) String() string {
	switch k {
	case Telemetry:
		return "telemetry"
	case Manual:
		return "manual"
	default:
		return "ignore"
	}
}

type payload struct {
	PtsX  []float64 `json:"ptsx"`
	PtsY  []float64 `json:"ptsy"`
	X     *float64  `json:"x"`
	Y     *float64  `json:"y"`
	Psi   *float64  `json:"psi"`
	Speed *float64  `json:"speed"`

	SteeringValue *float64 `json:"steering_value"`
	Throttle      *float64 `json:"throttle"`
}

// Decode classifies a frame and, for telemetry, parses the observation.
// Missing or null steering_value and throttle read as zero; the other
// fields are required.
func Decode(frame []byte) (Kind, dynamo.Observation, error) {
	var obs dynamo.Observation
	if len(frame) <= len(eventPrefix) || !bytes.HasPrefix(frame, []byte(eventPrefix)) {
		return Ignore, obs, nil
	}

	var msg []json.RawMessage
	if err := json.Unmarshal(frame[len(eventPrefix):], &msg); err != nil {
		return Ignore, obs, fmt.Errorf("%w: %v", dynamo.ErrMalformedTelemetry, err)
	}
	if len(msg) == 0 {
		return Ignore, obs, fmt.Errorf("%w: empty event", dynamo.ErrMalformedTelemetry)
	}

	var event string
	if err := json.Unmarshal(msg[0], &event); err != nil {
		return Ignore, obs, fmt.Errorf("%w: event name: %v", dynamo.ErrMalformedTelemetry, err)
	}
	if event == "manual" || len(msg) < 2 || isNull(msg[1]) {
		return Manual, obs, nil
	}
	if event != "telemetry" {
		return Ignore, obs, nil
	}

	var p payload
	if err := json.Unmarshal(msg[1], &p); err != nil {
		return Telemetry, obs, fmt.Errorf("%w: %v", dynamo.ErrMalformedTelemetry, err)
	}
	if p.X == nil || p.Y == nil || p.Psi == nil || p.Speed == nil {
		return Telemetry, obs, fmt.Errorf("%w: pose fields missing", dynamo.ErrMalformedTelemetry)
	}
	if p.PtsX == nil || p.PtsY == nil {
		return Telemetry, obs, fmt.Errorf("%w: waypoints missing", dynamo.ErrMalformedTelemetry)
	}
	if len(p.PtsX) != len(p.PtsY) {
		return Telemetry, obs, fmt.Errorf("%w: ptsx has %d entries, ptsy %d",
			dynamo.ErrMalformedTelemetry, len(p.PtsX), len(p.PtsY))
	}

	obs = dynamo.Observation{
		Pose:       dynamo.Pose{X: *p.X, Y: *p.Y, Psi: *p.Psi, V: *p.Speed},
		WaypointsX: p.PtsX,
		WaypointsY: p.PtsY,
		Previous:   dynamo.Command{Steering: deref(p.SteeringValue), Throttle: deref(p.Throttle)},
	}
	return Telemetry, obs, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Steer is the payload of an outbound "steer" event.
type Steer struct {
	SteeringAngle float64   `json:"steering_angle"`
	Throttle      float64   `json:"throttle"`
	MPCX          []float64 `json:"mpc_x"`
	MPCY          []float64 `json:"mpc_y"`
	NextX         []float64 `json:"next_x"`
	NextY         []float64 `json:"next_y"`
}

// NewSteer builds a steer payload. Nil point slices encode as empty arrays.
func NewSteer(cmd dynamo.Command, mpcX, mpcY, nextX, nextY []float64) Steer {
	return Steer{
		SteeringAngle: cmd.Steering,
		Throttle:      cmd.Throttle,
		MPCX:          orEmpty(mpcX),
		MPCY:          orEmpty(mpcY),
		NextX:         orEmpty(nextX),
		NextY:         orEmpty(nextY),
	}
}

func orEmpty(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}

// EncodeSteer renders 42["steer",{...}].
func EncodeSteer(s Steer) ([]byte, error) {
	return encode("steer", s)
}

// EncodeManual renders the manual-mode acknowledgement 42["manual",{}].
func EncodeManual() []byte {
	return []byte(eventPrefix + `["manual",{}]`)
}

// EncodeTelemetry renders a telemetry frame the way the simulator sends it.
// The offline tools use it to drive a server end to end.
func EncodeTelemetry(obs dynamo.Observation) ([]byte, error) {
	steering, throttle := obs.Previous.Steering, obs.Previous.Throttle
	return encode("telemetry", payload{
		PtsX:          orEmpty(obs.WaypointsX),
		PtsY:          orEmpty(obs.WaypointsY),
		X:             &obs.Pose.X,
		Y:             &obs.Pose.Y,
		Psi:           &obs.Pose.Psi,
		Speed:         &obs.Pose.V,
		SteeringValue: &steering,
		Throttle:      &throttle,
	})
}

func encode(event string, v any) ([]byte, error) {
	body, err := json.Marshal([]any{event, v})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return append([]byte(eventPrefix), body...), nil
}
