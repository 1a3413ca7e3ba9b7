package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vpnconsole/vpnconsole/internal/clientcfg"
	"github.com/vpnconsole/vpnconsole/internal/logs"
	"github.com/vpnconsole/vpnconsole/internal/service"
	"github.com/vpnconsole/vpnconsole/internal/sessions"
)

// maxBodySize caps POST bodies. Requests here are a handful of short fields.
const maxBodySize = 1 << 20

const systemTimeFormat = "2006-01-02 15:04:05"

func (c *Console) registerRoutes(mux *http.ServeMux) {
	c.handle(mux, "/api/health", http.MethodGet, c.handleHealth)
	c.handle(mux, "/api/status", http.MethodGet, c.handleStatus)
	c.handle(mux, "/api/service/action", http.MethodPost, c.handleAction)
	c.handle(mux, "/api/logs", http.MethodGet, c.handleLogs)
	c.handle(mux, "/api/clients", http.MethodGet, c.handleClients)
	c.handle(mux, "/api/client/create", http.MethodPost, c.handleClientCreate)
	if c.opts.Metrics != nil {
		mux.Handle("/metrics", c.opts.Metrics.Handler())
	}
}

// handle registers fn for route, rejecting other methods and logging each
// request at debug level.
func (c *Console) handle(mux *http.ServeMux, route, method string, fn http.HandlerFunc) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		fn(w, r)
		c.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
	if c.opts.Metrics != nil {
		h = c.opts.Metrics.InstrumentHandler(route, h)
	}
	mux.Handle(route, h)
}

func (c *Console) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": c.now().Format(time.RFC3339),
		"version":   c.opts.Version,
	})
}

type statusResponse struct {
	Success    bool                             `json:"success"`
	Timestamp  string                           `json:"timestamp"`
	Containers map[string]service.ServiceStatus `json:"containers"`
	Health     json.RawMessage                  `json:"health"`
	System     systemInfo                       `json:"system"`
}

type systemInfo struct {
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

func (c *Console) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		snap   service.Snapshot
		health json.RawMessage
		uptime string
	)
	var g errgroup.Group
	g.Go(func() error {
		snap = c.opts.Status.Snapshot(ctx)
		return nil
	})
	g.Go(func() error {
		health = c.healthReport(ctx)
		return nil
	})
	g.Go(func() error {
		uptime = c.uptime(ctx)
		return nil
	})
	_ = g.Wait()

	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveSnapshot(snap)
	}
	now := c.now()
	writeJSON(w, http.StatusOK, statusResponse{
		Success:    true,
		Timestamp:  now.Format(time.RFC3339),
		Containers: snap.Services,
		Health:     health,
		System:     systemInfo{Uptime: uptime, Timestamp: now.Format(systemTimeFormat)},
	})
}

// healthReport runs the deployment's health check script. Anything other
// than a successful run printing valid JSON yields an empty object.
func (c *Console) healthReport(ctx context.Context) json.RawMessage {
	empty := json.RawMessage(`{}`)
	res := c.opts.Scripts.Run(ctx, "health-check.sh", "--format", "json")
	if !res.OK {
		c.log.Debug("health check failed", "detail", res.Message())
		return empty
	}
	out := []byte(strings.TrimSpace(res.Stdout))
	if !json.Valid(out) {
		c.log.Debug("health check printed invalid JSON")
		return empty
	}
	return out
}

func (c *Console) uptime(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.opts.UptimeTimeout)
	defer cancel()
	res := c.opts.Scripts.Exec(ctx, "uptime")
	if !res.OK {
		return "Unknown"
	}
	return strings.TrimSpace(res.Stdout)
}

type actionRequest struct {
	Action  string `json:"action"`
	Service string `json:"service"`
}

type actionResponse struct {
	Success      bool              `json:"success"`
	AllSucceeded bool              `json:"all_succeeded"`
	Message      string            `json:"message"`
	Error        *string           `json:"error"`
	Outcomes     []service.Outcome `json:"outcomes"`
}

func (c *Console) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := c.opts.Actions.Dispatch(r.Context(), req.Action, req.Service)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveReport(report)
	}

	resp := actionResponse{
		Success:      true,
		AllSucceeded: report.AllSucceeded,
		Message:      report.Message(),
		Outcomes:     report.Outcomes,
	}
	if !report.AllSucceeded {
		var failed []string
		for _, o := range report.Outcomes {
			if o.Classification == service.Failed {
				failed = append(failed, o.Detail)
			}
		}
		msg := strings.Join(failed, "\n")
		resp.Error = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

type logsResponse struct {
	Success  bool           `json:"success"`
	Logs     string         `json:"logs"`
	Sections []logs.Section `json:"sections"`
	Error    *string        `json:"error"`
}

func (c *Console) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("service")
	if target == "" {
		target = service.GroupAll
	}
	lines, err := logs.ParseLines(q.Get("lines"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	b, err := c.opts.Logs.Logs(r.Context(), target, lines)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Success: true, Logs: b.String(), Sections: b.Sections})
}

type clientsResponse struct {
	Success bool                     `json:"success"`
	Clients []sessions.ClientSession `json:"clients"`
	Count   int                      `json:"count"`
}

func (c *Console) handleClients(w http.ResponseWriter, _ *http.Request) {
	clients, st, err := sessions.ReadFile(c.opts.StatusFile)
	if err != nil {
		c.log.Warn("read status file", "path", c.opts.StatusFile, "err", err)
		writeFailure(w, err)
		return
	}
	if st.Skipped > 0 {
		c.log.Debug("skipped malformed session lines", "count", st.Skipped)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveSessions(len(clients))
	}
	writeJSON(w, http.StatusOK, clientsResponse{Success: true, Clients: clients, Count: len(clients)})
}

type clientCreateRequest struct {
	Name    string `json:"name"`
	Android bool   `json:"android"`
	Inline  *bool  `json:"inline"`
}

func (c *Console) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	if c.opts.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "client generation not configured")
		return
	}
	var req clientCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inline := true
	if req.Inline != nil {
		inline = *req.Inline
	}
	created, err := c.opts.Clients.Create(r.Context(), clientcfg.Request{Name: req.Name, Android: req.Android, Inline: inline})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("client config generated: %s", created.Name),
		"client_name": created.Name,
		"config_path": created.ConfigPath,
	})
}

// decodeBody reads a JSON body into v, writing the error response itself
// when it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

// writeFailure maps err to a status code: validation problems are the
// caller's fault, everything else is ours.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
