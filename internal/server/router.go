// Package server exposes the orchestrator over a loopback HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/launchr/internal/intent"
	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/orchestrator"
	"github.com/loykin/launchr/internal/process"
)

// Endpoints, relative to basePath:
//
//	GET  /state    last published state
//	GET  /games    manifest entries
//	GET  /process  slot status (pid, started_at)
//	POST /intent   raw intent JSON, 202 when queued
//	GET  /ws       state stream, current state first
//	GET  /metrics  Prometheus, when a handler is configured

type StateSource interface {
	Snapshot() orchestrator.State
}

type IntentSink interface {
	Deliver(payload []byte) bool
}

type GameLister interface {
	Games() []manifest.GameEntry
}

type ProcessStatus interface {
	Status() process.Status
}

type Options struct {
	BasePath string
	Games    GameLister
	Process  ProcessStatus
	Hub      *Hub
	Metrics  http.Handler
	Log      *slog.Logger
}

type Router struct {
	state StateSource
	sink  IntentSink
	opts  Options
	log   *slog.Logger
}

func NewRouter(state StateSource, sink IntentSink, opts Options) *Router {
	opts.BasePath = sanitizeBase(opts.BasePath)
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Router{state: state, sink: sink, opts: opts, log: log.With("component", "http")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.opts.BasePath)
	group.GET("/state", r.handleState)
	group.POST("/intent", r.handleIntent)
	if r.opts.Games != nil {
		group.GET("/games", r.handleGames)
	}
	if r.opts.Process != nil {
		group.GET("/process", r.handleProcess)
	}
	if r.opts.Hub != nil {
		group.GET("/ws", r.opts.Hub.Serve)
	}
	if r.opts.Metrics != nil {
		group.GET("/metrics", gin.WrapH(r.opts.Metrics))
	}
	return g
}

// NewServer wraps h in an http.Server with conservative timeouts. WriteTimeout
// stays unset because /ws connections are long-lived.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type acceptedResp struct {
	Accepted bool   `json:"accepted"`
	Type     string `json:"type"`
}

type gameResp struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms"`
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.state.Snapshot())
}

func (r *Router) handleGames(c *gin.Context) {
	games := r.opts.Games.Games()
	out := make([]gameResp, 0, len(games))
	for _, g := range games {
		syn := g.Synonyms
		if syn == nil {
			syn = []string{}
		}
		out = append(out, gameResp{ID: g.ID, Name: g.Name, Synonyms: syn})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleProcess(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.opts.Process.Status())
}

func (r *Router) handleIntent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "unreadable body: " + err.Error()})
		return
	}
	in, ok := intent.Parse(body)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "not a recognised intent"})
		return
	}
	if !r.sink.Deliver(body) {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "intent queue full"})
		return
	}
	r.log.Debug("intent accepted over http", "type", in.Type(), "remote", c.ClientIP())
	writeJSON(c, http.StatusAccepted, acceptedResp{Accepted: true, Type: in.Type()})
}
