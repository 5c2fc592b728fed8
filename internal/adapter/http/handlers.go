package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/port/cache"
	"github.com/waypointhq/waypoint/internal/service"
)

// defaultListCacheTTL bounds how stale a cached instance list may get when no
// TTL is configured. Writes do not invalidate; the window is short enough that
// dashboards tolerate it.
const defaultListCacheTTL = 2 * time.Second

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Registry    *service.RegistryService
	Events      *service.EventService
	Checkpoints *service.CheckpointService
	Commands    *service.CommandLogService
	Resume      *service.ResumeEngine
	Cache       cache.Cache
	CacheTTL    time.Duration
}

func (h *Handlers) listCacheTTL() time.Duration {
	if h.CacheTTL > 0 {
		return h.CacheTTL
	}
	return defaultListCacheTTL
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

func (h *Handlers) RegisterInstance(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[instance.RegisterRequest](w, r)
	if !ok {
		return
	}

	in, err := h.Registry.Register(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (h *Handlers) ListInstances(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	includeClosed := r.URL.Query().Get("include_closed") == "true"

	key := fmt.Sprintf("instances:%s:%t", project, includeClosed)
	if h.Cache != nil {
		if data, ok, err := h.Cache.Get(r.Context(), key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
			return
		}
	}

	list, err := h.Registry.List(r.Context(), project, includeClosed)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []instance.Instance{}
	}

	if h.Cache != nil {
		if data, err := json.Marshal(list); err == nil {
			_ = h.Cache.Set(r.Context(), key, data, h.listCacheTTL())
		}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) ListStaleInstances(w http.ResponseWriter, r *http.Request) {
	list, err := h.Registry.ListStale(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []instance.Instance{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	in, err := h.Registry.GetDetails(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	if in == nil {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[instance.HeartbeatRequest](w, r)
	if !ok {
		return
	}
	req.InstanceID = urlParam(r, "id")

	res, err := h.Registry.Heartbeat(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) CloseInstance(w http.ResponseWriter, r *http.Request) {
	in, err := h.Registry.Close(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

type emitEventRequest struct {
	Type     event.Type      `json:"event_type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (h *Handlers) EmitEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[emitEventRequest](w, r)
	if !ok {
		return
	}

	ev, err := h.Events.Emit(r.Context(), urlParam(r, "id"), req.Type, req.Payload, req.Metadata)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handlers) QueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := event.Filter{InstanceID: urlParam(r, "id")}

	for _, t := range q["type"] {
		filter.Types = append(filter.Types, event.Type(t))
	}
	if v := q.Get("after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be RFC 3339")
			return
		}
		filter.After = &ts
	}
	if v := q.Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		filter.Before = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	evs, err := h.Events.Query(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if evs == nil {
		evs = []event.InstanceEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *Handlers) ReplayEvents(w http.ResponseWriter, r *http.Request) {
	var upTo int64
	if v := r.URL.Query().Get("up_to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "up_to must be a non-negative integer")
			return
		}
		upTo = n
	}

	evs, err := h.Events.Replay(r.Context(), urlParam(r, "id"), upTo)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	if evs == nil {
		evs = []event.InstanceEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *Handlers) ListEventTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Events.ListTypes())
}

// EventStats returns per-type event counts, optionally scoped to one instance.
func (h *Handlers) EventStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Events.AggregateByType(r.Context(), r.URL.Query().Get("instance_id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

func (h *Handlers) CreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[checkpoint.CreateRequest](w, r)
	if !ok {
		return
	}
	req.InstanceID = urlParam(r, "id")

	cp, err := h.Checkpoints.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

func (h *Handlers) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.Checkpoints.ListForInstance(r.Context(), urlParam(r, "id"), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []checkpoint.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Checkpoints.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

type cleanupRequest struct {
	MaxAgeHours    int `json:"max_age_hours,omitempty"`
	MaxPerInstance int `json:"max_per_instance,omitempty"`
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

func (h *Handlers) CleanupCheckpoints(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cleanupRequest](w, r)
	if !ok {
		return
	}

	policy := checkpoint.RetentionPolicy{
		MaxAge:         time.Duration(req.MaxAgeHours) * time.Hour,
		MaxPerInstance: req.MaxPerInstance,
	}
	n, err := h.Checkpoints.Cleanup(r.Context(), policy)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: n})
}

// ---------------------------------------------------------------------------
// Command log
// ---------------------------------------------------------------------------

func (h *Handlers) LogCommand(w http.ResponseWriter, r *http.Request) {
	entry, ok := readJSON[command.Entry](w, r)
	if !ok {
		return
	}
	entry.InstanceID = urlParam(r, "id")

	out, err := h.Commands.Log(r.Context(), &entry)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) SearchCommands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := command.Filter{
		InstanceID:  urlParam(r, "id"),
		CommandType: q.Get("command_type"),
		Text:        q.Get("text"),
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "success must be a boolean")
			return
		}
		filter.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	entries, err := h.Commands.Search(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []command.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) CommandStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Commands.StatsFor(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ---------------------------------------------------------------------------
// Resume
// ---------------------------------------------------------------------------

type resumeRequest struct {
	Hint   string `json:"hint,omitempty"`
	Choice *int   `json:"choice,omitempty"`
}

func (h *Handlers) ResumeInstance(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resumeRequest](w, r)
	if !ok {
		return
	}

	res, err := h.Resume.Resume(r.Context(), req.Hint, req.Choice)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) ResumeDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.Resume.Details(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, details)
}
