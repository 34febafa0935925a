package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/models"
)

// SessionResponse carries a session and the result of its remote call
type SessionResponse struct {
	Session   *models.CountSession `json:"session"`
	Synced    bool                 `json:"synced"`
	SyncError string               `json:"syncError,omitempty"`
}

func sessionResponse(sess *models.CountSession, out counting.Outcome) SessionResponse {
	resp := SessionResponse{Session: sess, Synced: sess != nil && sess.Synced()}
	if out.Err != nil {
		resp.SyncError = out.Err.Error()
	}
	return resp
}

func (r *Router) createSession(w http.ResponseWriter, req *http.Request) {
	var in counting.SessionInput
	if err := decodeJSON(req, &in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if in.Type == "" {
		in.Type = models.CountTypeFull
	}
	if !in.Type.Valid() {
		respondError(w, http.StatusBadRequest, "unknown count type")
		return
	}

	if req.URL.Query().Get("offline") == "true" {
		sess := r.store.CreateCountSession(in)
		respondJSON(w, http.StatusCreated, sessionResponse(sess, counting.Outcome{}))
		return
	}

	sess, out := r.store.CreateCountSessionWithAPI(req.Context(), in)
	respondJSON(w, http.StatusCreated, sessionResponse(sess, out))
}

func (r *Router) listSessions(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.store.ListCountSessions())
}

func (r *Router) getSession(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.store.GetCountSession(mux.Vars(req)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (r *Router) getActiveSession(w http.ResponseWriter, req *http.Request) {
	sess := r.store.GetActiveSession()
	if sess == nil {
		respondError(w, http.StatusNotFound, counting.ErrNoActiveSession.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (r *Router) setActiveSession(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ID *string `json:"id"`
	}
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !r.store.SetActiveSession(body.ID) {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) updateSession(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	var patch counting.SessionPatch
	if err := decodeJSON(req, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if _, ok := r.store.GetCountSession(id); !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	sess, ok := r.store.UpdateCountSession(id, patch)
	if !ok {
		respondError(w, http.StatusBadRequest, "current area does not belong to the session")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (r *Router) completeSession(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.store.CompleteCountSession(mux.Vars(req)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (r *Router) approveSession(w http.ResponseWriter, req *http.Request) {
	sess, err := r.store.ApproveCountSession(req.Context(), mux.Vars(req)["id"])
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, sess)
	case errors.Is(err, counting.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, counting.ErrBackendNotWired),
		errors.Is(err, counting.ErrSessionNotSynced),
		errors.Is(err, counting.ErrSessionNotCompleted):
		respondError(w, http.StatusConflict, err.Error())
	default:
		r.log.Warn("approve failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (r *Router) syncSession(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	out, err := r.store.SyncSessionWithAPI(req.Context(), id)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, counting.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, status, err.Error())
		return
	}
	sess, _ := r.store.GetCountSession(id)
	resp := sessionResponse(sess, out)
	if out.Err != nil {
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ProgressResponse is the area progress of one session
type ProgressResponse struct {
	counting.AreaProgress
	Current       int     `json:"current"`
	Done          bool    `json:"done"`
	CurrentAreaID *string `json:"currentAreaId"`
}

func (r *Router) sessionProgress(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	sess, ok := r.store.GetCountSession(id)
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	p := r.store.GetAreaProgress(id)
	respondJSON(w, http.StatusOK, ProgressResponse{
		AreaProgress:  p,
		Current:       p.Current(),
		Done:          p.Done(),
		CurrentAreaID: sess.CurrentAreaID,
	})
}

// AreaCompletionResponse reports the result of completing the current area
type AreaCompletionResponse struct {
	counting.AreaCompletion
	Session       *models.CountSession `json:"session"`
	AreaSyncError string               `json:"areaSyncError,omitempty"`
}

func (r *Router) completeArea(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	res, err := r.store.CompleteCurrentArea(req.Context(), id)

	var syncErr *counting.AreaSyncError
	switch {
	case err == nil:
	case errors.As(err, &syncErr):
		// progression was applied locally; the scheduler retries the area
	case errors.Is(err, counting.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, counting.ErrNoCurrentArea):
		respondError(w, http.StatusConflict, err.Error())
		return
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess, _ := r.store.GetCountSession(id)
	resp := AreaCompletionResponse{AreaCompletion: res, Session: sess}
	if syncErr != nil {
		resp.AreaSyncError = syncErr.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (r *Router) rehydrate(w http.ResponseWriter, req *http.Request) {
	sess, items, err := r.store.RehydrateCurrentSessionItems()
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"items":   items,
	})
}
