// Package httpapi exposes a session over HTTP for valvectl serve.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/sequence"
	"github.com/allbin/go-valve/session"
)

// Server serves one session.
type Server struct {
	session  *session.Session
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Options configures the handler.
type Options struct {
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewHandler creates the router for s.
func NewHandler(s *session.Session, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{session: s, gatherer: opts.Gatherer, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(srv.logRequests)

	r.Get("/health", srv.health)
	r.Get("/ports", srv.ports)
	r.Post("/detect", srv.detect)
	r.Post("/connect", srv.connect)
	r.Post("/disconnect", srv.disconnect)
	r.Get("/status", srv.status)
	r.Post("/command", srv.command)
	r.Get("/events", srv.events)

	r.Route("/sequence", func(r chi.Router) {
		r.Get("/steps", srv.listSteps)
		r.Post("/steps", srv.addStep)
		r.Delete("/steps", srv.clearSteps)
		r.Put("/steps/{id}", srv.updateStep)
		r.Delete("/steps/{id}", srv.removeStep)
		r.Post("/edges", srv.connectSteps)
		r.Delete("/edges/{from}", srv.disconnectSteps)
		r.Get("/order", srv.order)
		r.Post("/demo", srv.loadDemo)
		r.Post("/start", srv.start)
		r.Post("/stop", srv.stop)
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, valve.ErrInvalidCommand),
		errors.Is(err, valve.ErrInvalidPosition),
		errors.Is(err, sequence.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, sequence.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, sequence.ErrRunning),
		errors.Is(err, valve.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, sequence.ErrSelfLoop),
		errors.Is(err, sequence.ErrDuplicateIncoming),
		errors.Is(err, sequence.ErrCycle),
		errors.Is(err, sequence.ErrEmptySequence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, valve.ErrDevice):
		return http.StatusBadGateway
	case errors.Is(err, valve.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": s.session.IsConnected(),
	})
}

type candidateJSON struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty"`
	HardwareID   string `json:"hwid"`
	SerialNumber string `json:"serial,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Score        int    `json:"score"`
}

func toCandidateJSON(c valve.PortCandidate) candidateJSON {
	out := candidateJSON{
		Name:         c.Name,
		Description:  c.Description,
		Manufacturer: c.Manufacturer,
		Product:      c.Product,
		HardwareID:   c.HardwareID,
		SerialNumber: c.SerialNumber,
		Score:        valve.Score(c),
	}
	if c.IsUSB {
		out.VID = fmt.Sprintf("%04X", c.VID)
		out.PID = fmt.Sprintf("%04X", c.PID)
	}
	return out
}

func (s *Server) ports(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.session.DiscoverPorts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, toCandidateJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	d, err := s.session.Detect(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"mode": d.Mode.String()}
	if d.Mode != valve.ModeNone {
		resp["port"] = d.Candidate.Name
	}
	if d.Result != nil {
		resp["detail"] = d.Result.Detail
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Port string `json:"port"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Port == "" {
		s.writeError(w, fmt.Errorf("%w: port is required", errBadRequest))
		return
	}
	if err := s.session.Connect(r.Context(), body.Port); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "port": body.Port})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

type resultJSON struct {
	Outcome string `json:"outcome"`
	Cause   string `json:"cause,omitempty"`
	Loops   int    `json:"loops"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	seq := map[string]any{
		"state": st.State.String(),
		"loop":  st.Loop,
	}
	if st.State != sequence.Idle {
		seq["progress"] = map[string]any{
			"loop":     st.Progress.Loop,
			"step":     st.Progress.Index,
			"total":    st.Progress.Total,
			"position": st.Progress.Step.Position.String(),
		}
	}
	if st.Last != nil {
		last := resultJSON{Outcome: st.Last.Outcome.String(), Cause: st.Last.Cause.String(), Loops: st.Last.Loops}
		if st.Last.Err != nil {
			last.Error = st.Last.Err.Error()
		}
		seq["last"] = last
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.session.IsConnected(),
		"port":      s.session.PortName(),
		"sequence":  seq,
	})
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if len(body.Command) != 1 {
		s.writeError(w, fmt.Errorf("%w: command must be a single character", valve.ErrInvalidCommand))
		return
	}

	cmd := body.Command[0]
	if cmd != valve.QueryCommand {
		if p, err := valve.ParsePosition(body.Command); err == nil {
			cmd = byte(p)
		}
	}

	resp, err := s.session.SendCommand(cmd)
	if err != nil && !errors.Is(err, valve.ErrDevice) {
		s.writeError(w, err)
		return
	}
	out := map[string]any{
		"kind":    resp.Kind.String(),
		"line":    resp.Line,
		"payload": resp.Payload,
	}
	if err != nil {
		out["error"] = err.Error()
		writeJSON(w, statusFor(err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// events drains the hardware event queue, or streams events as they arrive
// when the client asks for text/event-stream.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "text/event-stream" {
		s.streamEvents(w, r)
		return
	}
	drained := s.session.DrainHardwareEvents()
	out := make([]string, 0, len(drained))
	for _, p := range drained {
		out = append(out, p.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := make(chan valve.Position, 16)
	unsubscribe := s.session.OnHardwareEvent(func(p valve.Position) {
		select {
		case ch <- p:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-ch:
			fmt.Fprintf(w, "event: hardware\ndata: {\"pos\":%q}\n\n", p.String())
			flusher.Flush()
		}
	}
}

type stepJSON struct {
	ID       int     `json:"id"`
	Position string  `json:"position"`
	Duration float64 `json:"duration"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Next     *int    `json:"next,omitempty"`
}

type stepRequest struct {
	Position string   `json:"position"`
	Duration float64  `json:"duration"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
}

func (req stepRequest) step() (sequence.Step, error) {
	pos, err := valve.ParsePosition(req.Position)
	if err != nil {
		return sequence.Step{}, err
	}
	d, err := sequence.FromSeconds(req.Duration)
	if err != nil {
		return sequence.Step{}, err
	}
	return sequence.NewStep(pos, d)
}

func (s *Server) listSteps(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Sequence().Snapshot()
	next := make(map[sequence.NodeID]int)
	for _, e := range snap.Edges() {
		next[e.From] = int(e.To)
	}

	out := make([]stepJSON, 0, snap.Len())
	for _, n := range snap.Nodes() {
		sj := stepJSON{
			ID:       int(n.ID),
			Position: n.Step.Position.String(),
			Duration: n.Step.Duration.Seconds(),
			X:        n.X,
			Y:        n.Y,
		}
		if to, ok := next[n.ID]; ok {
			sj.Next = &to
		}
		out = append(out, sj)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	step, err := req.step()
	if err != nil {
		s.writeError(w, err)
		return
	}

	var id sequence.NodeID
	if req.X == nil && req.Y == nil {
		id, err = s.session.Sequence().AppendStep(step)
	} else {
		id, err = s.session.Sequence().AddStep(step, deref(req.X), deref(req.Y))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"id": int(id)})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func nodeParam(r *http.Request, name string) (sequence.NodeID, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return sequence.NodeID(id), nil
}

func (s *Server) updateStep(w http.ResponseWriter, r *http.Request) {
	id, err := nodeParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req stepRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	step, err := req.step()
	if err != nil {
		s.writeError(w, err)
		return
	}

	engine := s.session.Sequence()
	if err := engine.UpdateStep(id, step); err != nil {
		s.writeError(w, err)
		return
	}
	if req.X != nil || req.Y != nil {
		node, _ := engine.Snapshot().Node(id)
		x, y := node.X, node.Y
		if req.X != nil {
			x = *req.X
		}
		if req.Y != nil {
			y = *req.Y
		}
		if err := engine.MoveStep(id, x, y); err != nil {
			s.writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeStep(w http.ResponseWriter, r *http.Request) {
	id, err := nodeParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.session.Sequence().RemoveStep(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearSteps(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Sequence().Clear(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadDemo(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Sequence().LoadDemo(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connectSteps(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.session.Sequence().ConnectSteps(sequence.NodeID(body.From), sequence.NodeID(body.To)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disconnectSteps(w http.ResponseWriter, r *http.Request) {
	from, err := nodeParam(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.session.Sequence().DisconnectSteps(from); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) order(w http.ResponseWriter, r *http.Request) {
	run, err := s.session.Sequence().ResolveOrder()
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids := make([]int, len(run.Nodes))
	for i, n := range run.Nodes {
		ids[i] = int(n.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": run.Mode.String(), "order": ids})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Loop bool `json:"loop"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.session.Start(body.Loop); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": "running", "loop": body.Loop})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{"state": s.session.Status().State.String()})
}
