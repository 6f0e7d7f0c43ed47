package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/bryan-buckman/feedsync/internal/opml"
)

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no file provided"})
		return
	}
	defer file.Close()

	subs, err := opml.Parse(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("failed to parse OPML: %v", err)})
		return
	}

	report, err := opml.Import(r.Context(), s.store, subs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"imported": report.Imported,
		"total":    report.Total,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := opml.Export(r.Context(), s.store, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=feedsync-feeds.opml")
	_, _ = w.Write(buf.Bytes())
}
