package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/middleware"
	"github.com/edukinara/happybar-sub000/internal/models"
)

const defaultItemLimit = 50

type saveCountRequest struct {
	counting.SaveCountInput
	ClientRequestID string `json:"clientRequestId,omitempty"`
}

// SaveCountResponse is returned by POST /api/counts/items
type SaveCountResponse struct {
	Item      *models.CountItem `json:"item"`
	Pushed    bool              `json:"pushed"`
	PushError string            `json:"pushError,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

func (r *Router) listItems(w http.ResponseWriter, req *http.Request) {
	limit := defaultItemLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, r.store.GetRecentCountItems(limit))
}

func (r *Router) sessionItems(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if _, ok := r.store.GetCountSession(id); !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, r.store.GetCountItemsBySession(id))
}

func (r *Router) saveCount(w http.ResponseWriter, req *http.Request) {
	var body saveCountRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// a concurrent twin waits here for the first request's result
	prev, dup, err := r.dedup.Claim(req.Context(), body.ClientRequestID)
	if err != nil {
		respondError(w, http.StatusRequestTimeout, err.Error())
		return
	}
	if dup {
		if resp, ok := prev.(SaveCountResponse); ok {
			resp.Duplicate = true
			respondJSON(w, http.StatusOK, resp)
			return
		}
	}

	item, out, err := r.store.SaveCount(req.Context(), body.SaveCountInput)
	if err != nil {
		r.dedup.Release(body.ClientRequestID)
		if errors.Is(err, counting.ErrInvalidQuantity) || errors.Is(err, counting.ErrMissingProduct) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.log.Error("save count failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SaveCountResponse{Item: item, Pushed: out.OK()}
	if out.Err != nil {
		resp.PushError = out.Err.Error()
	}
	r.dedup.Remember(body.ClientRequestID, resp)
	r.ackDevice(req, resp, body.ClientRequestID)
	respondJSON(w, http.StatusCreated, resp)
}

// ackDevice confirms a save on the requesting device's socket
func (r *Router) ackDevice(req *http.Request, resp SaveCountResponse, msgID string) {
	deviceID := middleware.DeviceID(req.Context())
	if r.hub == nil || deviceID == "" {
		return
	}
	r.hub.SendToDevice(deviceID, map[string]interface{}{
		"type":   "COUNT_SAVED",
		"msgId":  msgID,
		"itemId": resp.Item.ID,
		"pushed": resp.Pushed,
	})
}

func (r *Router) updateItem(w http.ResponseWriter, req *http.Request) {
	var patch counting.CountItemPatch
	if err := decodeJSON(req, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if patch.CountedQuantity != nil && *patch.CountedQuantity < 0 {
		respondError(w, http.StatusBadRequest, counting.ErrInvalidQuantity.Error())
		return
	}

	item, ok := r.store.UpdateCountItem(mux.Vars(req)["id"], patch)
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrItemNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (r *Router) deleteItem(w http.ResponseWriter, req *http.Request) {
	if !r.store.RemoveCountItem(mux.Vars(req)["id"]) {
		respondError(w, http.StatusNotFound, counting.ErrItemNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) clearItems(w http.ResponseWriter, req *http.Request) {
	r.store.ClearCountItems()
	w.WriteHeader(http.StatusNoContent)
}
