package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/buildinfo"
	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/middleware"
	appsync "github.com/edukinara/happybar-sub000/internal/sync"
	"github.com/edukinara/happybar-sub000/internal/utils"
	"github.com/edukinara/happybar-sub000/internal/websocket"
)

// Deps are the collaborators the HTTP layer serves from
type Deps struct {
	Store      *counting.Store
	Scheduler  *appsync.Scheduler
	Reconciler *appsync.Reconciler
	Metrics    *appsync.Metrics
	Hub        *websocket.Hub
	JWTSecret  string
	Log        *zap.Logger
}

// Router wraps the mux router and the count engine
type Router struct {
	*mux.Router
	store      *counting.Store
	scheduler  *appsync.Scheduler
	reconciler *appsync.Reconciler
	hub        *websocket.Hub
	dedup      *utils.Deduplicator
	log        *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		Router:     mux.NewRouter(),
		store:      d.Store,
		scheduler:  d.Scheduler,
		reconciler: d.Reconciler,
		hub:        d.Hub,
		dedup:      utils.NewDeduplicator(0),
		log:        log.Named("http"),
	}
	r.Use(middleware.RequestLogger(r.log))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	}

	auth := middleware.AuthMiddleware(d.JWTSecret)

	if r.hub != nil {
		r.Handle("/ws", auth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(r.hub, w, req, middleware.DeviceID(req.Context()))
		})))
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)

	// Ledger
	items := api.PathPrefix("/counts/items").Subrouter()
	items.HandleFunc("", r.listItems).Methods("GET")
	items.HandleFunc("", r.saveCount).Methods("POST")
	items.HandleFunc("", r.clearItems).Methods("DELETE")
	items.HandleFunc("/{id}", r.updateItem).Methods("PUT")
	items.HandleFunc("/{id}", r.deleteItem).Methods("DELETE")

	// Sessions; fixed paths before {id}
	sessions := api.PathPrefix("/counts/sessions").Subrouter()
	sessions.HandleFunc("", r.listSessions).Methods("GET")
	sessions.HandleFunc("", r.createSession).Methods("POST")
	sessions.HandleFunc("/active", r.getActiveSession).Methods("GET")
	sessions.HandleFunc("/active", r.setActiveSession).Methods("PUT")
	sessions.HandleFunc("/rehydrate", r.rehydrate).Methods("POST")
	sessions.HandleFunc("/{id}", r.getSession).Methods("GET")
	sessions.HandleFunc("/{id}", r.updateSession).Methods("PUT")
	sessions.HandleFunc("/{id}/items", r.sessionItems).Methods("GET")
	sessions.HandleFunc("/{id}/complete", r.completeSession).Methods("POST")
	sessions.HandleFunc("/{id}/approve", r.approveSession).Methods("POST")
	sessions.HandleFunc("/{id}/sync", r.syncSession).Methods("POST")
	sessions.HandleFunc("/{id}/progress", r.sessionProgress).Methods("GET")
	sessions.HandleFunc("/{id}/areas/complete", r.completeArea).Methods("POST")
	sessions.HandleFunc("/{id}/sheet.pdf", r.countSheet).Methods("GET")
	sessions.HandleFunc("/{id}/labels.pdf", r.areaLabels).Methods("GET")

	// Sync control
	api.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	api.HandleFunc("/sync/now", r.syncNow).Methods("POST")
	api.HandleFunc("/sync/app-state", r.appState).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"online":    r.store.Online(),
		"buildTime": buildinfo.BuildTime,
		"commit":    buildinfo.CommitHash,
		"startTime": buildinfo.StartTime,
		"wsClients": r.wsClients(),
	})
}

func (r *Router) wsClients() int {
	if r.hub == nil {
		return 0
	}
	return r.hub.ClientCount()
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func decodeJSON(req *http.Request, v interface{}) error {
	return json.NewDecoder(req.Body).Decode(v)
}
