package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/lazyrestore/internal/manager"
	"github.com/loykin/lazyrestore/internal/tab"
)

// Router provides embeddable HTTP handlers for the restore manager.
// Endpoints:
//
//	POST {basePath}/register          body: {tab_id, target_url, created_at?}
//	POST {basePath}/unregister        query: tab_id=N
//	POST {basePath}/events/updated    body: {tab_id, change, tab}
//	POST {basePath}/events/activated  query: tab_id=N
//	POST {basePath}/events/removed    query: tab_id=N
//	GET  {basePath}/entries
//	GET  {basePath}/entries/:tab_id
//	GET  {basePath}/ws                host bridge (when configured)
//	GET  {basePath}/metrics           Prometheus (when configured)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
	bridge   http.Handler
	metrics  http.Handler
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// WithBridge mounts the host WebSocket bridge at {basePath}/ws.
func (r *Router) WithBridge(h http.Handler) *Router {
	r.bridge = h
	return r
}

// WithMetrics mounts a metrics handler at {basePath}/metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/register", r.handleRegister)
	group.POST("/unregister", r.handleUnregister)
	group.POST("/events/updated", r.handleUpdated)
	group.POST("/events/activated", r.handleActivated)
	group.POST("/events/removed", r.handleRemoved)
	group.GET("/entries", r.handleEntries)
	group.GET("/entries/:tab_id", r.handleEntry)
	if r.bridge != nil {
		group.GET("/ws", gin.WrapH(r.bridge))
	}
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer returns an http.Server for h with the daemon's timeouts. The
// write timeout is left unset so bridge WebSocket connections stay open.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type foundResp struct {
	OK    bool `json:"ok"`
	Found bool `json:"found"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	TabID     *int       `json:"tab_id"`
	TargetURL string     `json:"target_url"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// UpdatedRequest is the body of POST /events/updated.
type UpdatedRequest struct {
	TabID  *int           `json:"tab_id"`
	Change tab.ChangeInfo `json:"change"`
	Tab    tab.Snapshot   `json:"tab"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mng.ErrInvalidTabID), errors.Is(err, mng.ErrMissingTargetURL):
		return http.StatusBadRequest
	case errors.Is(err, mng.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.TabID == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "tab_id required"})
		return
	}
	mreq := mng.RegisterRequest{TargetURL: req.TargetURL}
	if req.CreatedAt != nil {
		mreq.CreatedAt = *req.CreatedAt
	}
	if err := r.mgr.Register(c.Request.Context(), tab.ID(*req.TabID), mreq); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleUnregister(c *gin.Context) {
	id, ok := queryTabID(c)
	if !ok {
		return
	}
	found, err := r.mgr.Unregister(c.Request.Context(), id)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, foundResp{OK: true, Found: found})
}

func (r *Router) handleUpdated(c *gin.Context) {
	var req UpdatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.TabID == nil || *req.TabID < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "valid tab_id required"})
		return
	}
	if err := r.mgr.TabUpdated(c.Request.Context(), tab.ID(*req.TabID), req.Change, req.Tab); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleActivated(c *gin.Context) {
	id, ok := queryTabID(c)
	if !ok {
		return
	}
	if err := r.mgr.TabActivated(c.Request.Context(), id); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleRemoved(c *gin.Context) {
	id, ok := queryTabID(c)
	if !ok {
		return
	}
	if err := r.mgr.TabRemoved(c.Request.Context(), id); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleEntries(c *gin.Context) {
	recs, err := r.mgr.Entries(c.Request.Context())
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleEntry(c *gin.Context) {
	id, err := tab.ParseID(c.Param("tab_id"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid tab_id: " + err.Error()})
		return
	}
	e, found, err := r.mgr.Get(c.Request.Context(), id)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no entry for tab " + id.String()})
		return
	}
	writeJSON(c, http.StatusOK, e)
}
