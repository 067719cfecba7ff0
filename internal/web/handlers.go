package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/hw/power"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
	"github.com/cjeanneret/ddh/internal/logic/gesture"
	"github.com/cjeanneret/ddh/internal/logic/motion"
)

// Hand is the hand as seen by the HTTP layer. *motion.Hand implements it.
type Hand interface {
	gesture.Hand
	Geometry() *geometry.Geometry
	Do(side geometry.Side, fn func(f *motion.Finger) error) error
	Pose() (motion.HandPose, error)
	Arm(g odrive.Gains) error
	Disarm() error
	Armed() (bool, error)
}

// FingerCommand is the body of POST /fingers/{side}/{mode}.
// Which fields are required depends on the mode.
type FingerCommand struct {
	A1  *float64 `json:"a1,omitempty"`
	A2  *float64 `json:"a2,omitempty"`
	X   *float64 `json:"x,omitempty"`
	Y   *float64 `json:"y,omitempty"`
	Phi *float64 `json:"phi,omitempty"`
}

// JawCommand is the body of POST /jaw.
type JawCommand struct {
	Angle float64 `json:"angle"`
	Phi   float64 `json:"phi"`
}

// GeometryInfo is returned by GET /config.
type GeometryInfo struct {
	Params           geometry.Params `json:"params"`
	SingularityAngle float64         `json:"a2_sing"`
	VirtualLink      float64         `json:"lv"`
	VirtualAngle     float64         `json:"gv"`
	RMin             float64         `json:"r_min"`
	RMax             float64         `json:"r_max"`
	Gains            odrive.Gains    `json:"gains"`
}

func finiteField(name string, v *float64) error {
	if v == nil {
		return fmt.Errorf("%s is required", name)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%s must be finite", name)
	}
	return nil
}

// ValidateFingerCommand checks that c carries finite values for every field
// mode needs. Modes: a1a2, point, tip, a1phi.
func ValidateFingerCommand(mode string, c FingerCommand) error {
	var fields []struct {
		name string
		v    *float64
	}
	add := func(name string, v *float64) {
		fields = append(fields, struct {
			name string
			v    *float64
		}{name, v})
	}
	switch mode {
	case "a1a2":
		add("a1", c.A1)
		add("a2", c.A2)
	case "point", "tip":
		add("x", c.X)
		add("y", c.Y)
	case "a1phi":
		add("a1", c.A1)
		add("phi", c.Phi)
	default:
		return fmt.Errorf("unknown mode %q (want a1a2, point, tip or a1phi)", mode)
	}
	for _, f := range fields {
		if err := finiteField(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// args returns the two values mode consumes. c must have passed
// ValidateFingerCommand for mode.
func (c FingerCommand) args(mode string) (u, v float64) {
	switch mode {
	case "a1a2":
		return *c.A1, *c.A2
	case "point", "tip":
		return *c.X, *c.Y
	default:
		return *c.A1, *c.Phi
	}
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Hand        Hand
	Broadcaster *StatusBroadcaster
	Gains       odrive.Gains
	staticFS    fs.FS

	// newDance builds the sequence run by POST /dance.
	newDance func() *gesture.Sequence
	baseCtx  context.Context

	runningMu sync.Mutex
	running   bool
	done      chan struct{} // closed when the running dance ends
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(hand Hand, broadcaster *StatusBroadcaster, gains odrive.Gains, staticFS fs.FS) *Handlers {
	return &Handlers{
		Hand:        hand,
		Broadcaster: broadcaster,
		Gains:       gains,
		staticFS:    staticFS,
		newDance:    gesture.StartupDance,
		baseCtx:     context.Background(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps command errors to status codes: unreachable targets are
// 422, a pressed e-stop is 503, anything else came from the controllers (502).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, geometry.ErrUnreachable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, power.ErrEmergencyStop):
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusUnprocessableEntity {
		debug.Error(err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HandleConfig returns the finger geometry and derived constants as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	g := h.Hand.Geometry()
	lv, gv := g.VirtualLink()
	writeJSON(w, http.StatusOK, GeometryInfo{
		Params:           g.Params(),
		SingularityAngle: g.SingularityAngle(),
		VirtualLink:      lv,
		VirtualAngle:     gv,
		RMin:             g.RMin(),
		RMax:             g.RMax(),
		Gains:            h.Gains,
	})
}

// HandlePose returns both fingers' live pose.
func (h *Handlers) HandlePose(w http.ResponseWriter, r *http.Request) {
	pose, err := h.Hand.Pose()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pose)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleFinger handles POST /fingers/{side}/{mode}.
func (h *Handlers) HandleFinger(w http.ResponseWriter, r *http.Request) {
	side, err := geometry.ParseSide(r.PathValue("side"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := r.PathValue("mode")

	var cmd FingerCommand
	if err := decodeBody(r, &cmd); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateFingerCommand(mode, cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, v := cmd.args(mode)
	var pose motion.FingerPose
	err = h.Hand.Do(side, func(f *motion.Finger) error {
		if err := f.Move(mode, u, v); err != nil {
			return err
		}
		var err error
		pose, err = f.Pose()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pose)
}

// HandleJaw handles POST /jaw.
func (h *Handlers) HandleJaw(w http.ResponseWriter, r *http.Request) {
	var cmd JawCommand
	if err := decodeBody(r, &cmd); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	for name, v := range map[string]float64{"angle": cmd.Angle, "phi": cmd.Phi} {
		if err := finiteField(name, &v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := h.Hand.SetParallelJaw(cmd.Angle, cmd.Phi); err != nil {
		writeError(w, err)
		return
	}
	h.HandlePose(w, r)
}

// HandleArm handles POST /arm. An empty body uses the configured gains;
// zero fields in the body fall back to them individually.
func (h *Handlers) HandleArm(w http.ResponseWriter, r *http.Request) {
	gains := h.Gains
	if r.ContentLength != 0 {
		var g odrive.Gains
		if err := decodeBody(r, &g); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if g.PosGain < 0 || g.VelGain < 0 || g.Bandwidth < 0 {
			http.Error(w, "gains must be >= 0", http.StatusBadRequest)
			return
		}
		if g.PosGain > 0 {
			gains.PosGain = g.PosGain
		}
		if g.VelGain > 0 {
			gains.VelGain = g.VelGain
		}
		if g.Bandwidth > 0 {
			gains.Bandwidth = g.Bandwidth
		}
	}
	if err := h.Hand.Arm(gains); err != nil {
		writeError(w, err)
		return
	}
	h.Broadcaster.BroadcastMsg("Hand armed")
	writeJSON(w, http.StatusOK, map[string]any{"armed": true, "gains": gains})
}

// HandleDisarm handles POST /disarm.
func (h *Handlers) HandleDisarm(w http.ResponseWriter, r *http.Request) {
	if err := h.Hand.Disarm(); err != nil {
		writeError(w, err)
		return
	}
	h.Broadcaster.BroadcastMsg("Hand disarmed")
	writeJSON(w, http.StatusOK, map[string]bool{"armed": false})
}

// HandleDance handles POST /dance to start the startup dance.
func (h *Handlers) HandleDance(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "sequence already in progress", http.StatusConflict)
		return
	}
	h.running = true
	done := make(chan struct{})
	h.done = done
	h.runningMu.Unlock()

	seq := h.newDance()
	seq.OnStep = func(i, n int, s gesture.Step) {
		h.Broadcaster.BroadcastData("progress", map[string]any{"step": i, "total": n, "name": s.Name})
	}

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
			close(done)
		}()

		if err := seq.Run(h.baseCtx, h.Hand); err != nil {
			h.Broadcaster.Broadcast("error", "Sequence failed: "+err.Error())
			debug.Error(err)
		} else {
			h.Broadcaster.Broadcast("info", "Sequence complete")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "sequence": seq.Name})
}

// waitDance blocks until the running sequence, if any, has finished.
func (h *Handlers) waitDance() {
	h.runningMu.Lock()
	done := h.done
	h.runningMu.Unlock()
	if done != nil {
		<-done
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
