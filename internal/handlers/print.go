package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/services/printer"
)

// countSheet renders the session's count sheet
func (r *Router) countSheet(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	sess, ok := r.store.GetCountSession(id)
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}

	pdfBytes, err := printer.GenerateCountSheetPDF(sess, r.store.GetCountItemsBySession(id))
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}
	writePDF(w, fmt.Sprintf("count_%s.pdf", id), pdfBytes)
}

// areaLabels renders one QR label per storage area
func (r *Router) areaLabels(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	sess, ok := r.store.GetCountSession(id)
	if !ok {
		respondError(w, http.StatusNotFound, counting.ErrSessionNotFound.Error())
		return
	}

	cfg := printer.DefaultLabelConfig()
	q := req.URL.Query()
	if v, err := strconv.Atoi(q.Get("cols")); err == nil {
		cfg.Cols = v
	}
	if v, err := strconv.Atoi(q.Get("rows")); err == nil {
		cfg.Rows = v
	}

	pdfBytes, err := printer.GenerateAreaLabelsPDF(sess, cfg)
	if errors.Is(err, printer.ErrNoAreas) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}
	writePDF(w, fmt.Sprintf("areas_%s.pdf", id), pdfBytes)
}

func writePDF(w http.ResponseWriter, filename string, pdfBytes []byte) {
	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}
