package handlers

import (
	"errors"
	"net/http"

	"github.com/edukinara/happybar-sub000/internal/counting"
	appsync "github.com/edukinara/happybar-sub000/internal/sync"
)

// SyncStatusResponse describes the sync subsystem
type SyncStatusResponse struct {
	Online     bool                 `json:"online"`
	Scheduler  *appsync.Status      `json:"scheduler,omitempty"`
	Pending    counting.PendingWork `json:"pending"`
	LastResult *appsync.Result      `json:"lastResult,omitempty"`
}

func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	resp := SyncStatusResponse{
		Online:  r.store.Online(),
		Pending: r.store.PendingWork(),
	}
	if r.scheduler != nil {
		st := r.scheduler.Status()
		resp.Scheduler = &st
	}
	if r.reconciler != nil {
		resp.LastResult = r.reconciler.LastResult()
	}
	respondJSON(w, http.StatusOK, resp)
}

// syncNow runs a reconciliation pass and waits for it (pull-to-refresh)
func (r *Router) syncNow(w http.ResponseWriter, req *http.Request) {
	if !r.store.Online() || r.reconciler == nil {
		respondError(w, http.StatusConflict, counting.ErrBackendNotWired.Error())
		return
	}

	var err error
	if r.scheduler != nil {
		err = r.scheduler.SyncNow(req.Context())
	} else {
		err = r.reconciler.Run(req.Context())
	}
	if errors.Is(err, appsync.ErrSyncInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	res := r.reconciler.LastResult()
	if err != nil {
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (r *Router) appState(w http.ResponseWriter, req *http.Request) {
	var body struct {
		State appsync.AppState `json:"state"`
	}
	if err := decodeJSON(req, &body); err != nil || !body.State.Valid() {
		respondError(w, http.StatusBadRequest, "state must be active, background or inactive")
		return
	}
	if r.scheduler != nil {
		r.scheduler.OnAppStateChange(body.State)
	}
	w.WriteHeader(http.StatusNoContent)
}
