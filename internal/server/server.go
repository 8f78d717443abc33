// Package server exposes a control.Controller to the simulator over a
// websocket carrying socket.io event frames.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/mpcdrive/internal/config"
	"github.com/san-kum/mpcdrive/internal/control"
	"github.com/san-kum/mpcdrive/internal/dynamo"
	"github.com/san-kum/mpcdrive/internal/telemetry"
)

const readLimit = 1 << 20

// Failure policies applied when a solve produces no command.
const (
	PolicySkip  = "skip"
	PolicyHold  = "hold"
	PolicyBrake = "brake"
)

type Server struct {
	addr       string
	delay      time.Duration
	onFailure  string
	controller control.Controller

	clock  clock.Clock
	logger *zap.Logger

	// solveMu serialises solves across connections.
	solveMu sync.Mutex

	sessions atomic.Int64
	ticks    atomic.Int64
	failures atomic.Int64

	httpServer *http.Server
}

type Option func(*Server)

func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(cfg config.ServerConfig, ctrl control.Controller, opts ...Option) *Server {
	s := &Server{
		addr:       cfg.Addr,
		delay:      cfg.ResponseDelay,
		onFailure:  cfg.OnFailure,
		controller: ctrl,
		clock:      clock.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onFailure == "" {
		s.onFailure = PolicySkip
	}
	s.logger = s.logger.Named("server")
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleSocket)
	return mux
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("listen %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return multierr.Combine(err, s.httpServer.Close())
	}
	return nil
}

type health struct {
	Status   string `json:"status"`
	Sessions int64  `json:"sessions"`
	Ticks    int64  `json:"ticks"`
	Failures int64  `json:"failures"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(health{
		Status:   "ok",
		Sessions: s.sessions.Load(),
		Ticks:    s.ticks.Load(),
		Failures: s.failures.Load(),
	})
	if err != nil {
		s.logger.Warn("health write failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	id := uuid.New()
	sess := &session{id: id, logger: s.logger.Sugar().With("session", id.String())}
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	sess.logger.Infow("connected", "remote", r.RemoteAddr)
	err = s.serve(r.Context(), conn, sess)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		err = nil
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		sess.logger.Warnw("disconnected", "ticks", sess.ticks, "failures", sess.failures, "error", err)
		return
	}
	sess.logger.Infow("disconnected", "ticks", sess.ticks, "failures", sess.failures)
	conn.Close(websocket.StatusNormalClosure, "")
}

// session is the per-connection state; only its own goroutine touches it.
type session struct {
	id     uuid.UUID
	logger *zap.SugaredLogger

	last     *dynamo.Command
	ticks    int
	failures int
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		reply, steer, err := s.respond(ctx, sess, data)
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}

		if steer {
			if err := s.wait(ctx); err != nil {
				return err
			}
		}
		if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
			return err
		}
	}
}

// respond returns the frame to send for an inbound frame, or nil when the
// frame gets no answer. steer is set for replies to telemetry, which are
// held for the response delay. An error ends the session.
func (s *Server) respond(ctx context.Context, sess *session, frame []byte) (reply []byte, steer bool, err error) {
	kind, obs, err := telemetry.Decode(frame)
	if err != nil {
		sess.logger.Debugw("dropped frame", "error", err)
		return nil, false, nil
	}

	switch kind {
	case telemetry.Manual:
		return telemetry.EncodeManual(), false, nil
	case telemetry.Telemetry:
		reply, err = s.solve(ctx, sess, obs)
		return reply, true, err
	default:
		return nil, false, nil
	}
}

// solve runs the controller for one telemetry frame.
func (s *Server) solve(ctx context.Context, sess *session, obs dynamo.Observation) ([]byte, error) {
	sess.ticks++
	s.ticks.Add(1)

	s.solveMu.Lock()
	out, err := s.controller.Step(ctx, obs)
	s.solveMu.Unlock()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return s.recover(sess, err)
	}

	cmd := out.Command
	sess.last = &cmd
	return telemetry.EncodeSteer(telemetry.NewSteer(cmd, out.MPCX, out.MPCY, out.NextX, out.NextY))
}

// recover applies the failure policy to a tick that produced no command.
func (s *Server) recover(sess *session, err error) ([]byte, error) {
	if !errors.Is(err, dynamo.ErrSolverFailed) {
		sess.logger.Debugw("skipped tick", "error", err)
		return nil, nil
	}

	sess.failures++
	s.failures.Add(1)
	sess.logger.Warnw("solve failed", "policy", s.onFailure, "error", err)

	switch s.onFailure {
	case PolicyHold:
		if sess.last == nil {
			return nil, nil
		}
		return telemetry.EncodeSteer(telemetry.NewSteer(*sess.last, nil, nil, nil, nil))
	case PolicyBrake:
		cmd := dynamo.Command{Steering: 0, Throttle: -1}
		sess.last = &cmd
		return telemetry.EncodeSteer(telemetry.NewSteer(cmd, nil, nil, nil, nil))
	default:
		return nil, nil
	}
}

// wait holds the reply for the configured response delay.
func (s *Server) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := s.clock.Timer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
