package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer"
	"github.com/root4loot/thumbnailer/internal/session"
	"github.com/root4loot/thumbnailer/pkg/archive"
)

type previewResponse struct {
	Count       int                    `json:"count"`
	Items       []thumbnailer.WorkItem `json:"items"`
	WaitSeconds int                    `json:"wait_seconds"`
	ArchiveName string                 `json:"archive_name"`
	Manifest    string                 `json:"manifest"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, err := fs.ReadFile(staticFiles, "static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "index page missing")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// preview resolves the operator input into work items without starting
// anything.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := s.parseBatchRequest(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	batch, err := thumbnailer.NewBatch(req.Items, req.WaitSeconds, req.ArchiveName)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Count:       len(batch.Items),
		Items:       batch.Items,
		WaitSeconds: batch.WaitSeconds,
		ArchiveName: batch.ArchiveFilename(),
		Manifest:    archive.Manifest(batch.Filenames()),
	})
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.session.State() == session.StateRunning {
		writeError(w, http.StatusConflict, session.ErrBusy.Error())
		return
	}

	req, err := s.parseBatchRequest(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	batch, err := thumbnailer.NewBatch(req.Items, req.WaitSeconds, req.ArchiveName)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	if err := s.session.Start(s.baseCtx, batch); err != nil {
		if errors.Is(err, session.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Errorf("Could not start batch: %v", err)
		writeError(w, http.StatusInternalServerError, "could not start batch")
		return
	}

	writeJSON(w, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := s.session.Payload()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(payload.ArchiveFilename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload.Archive)))
	_, _ = w.Write(payload.Archive)
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := s.session.Payload()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", attachment(payload.ArchiveName+".txt"))
	}
	_, _ = w.Write([]byte(payload.Manifest))
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.session.Reset(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// websocket streams session snapshots, starting with the current one.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(s.hub, conn)
	client.send <- Message{Type: "session", Data: s.session.Snapshot()}
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeRequestError answers a request whose input could not be used.
func writeRequestError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	if !isInputError(err) {
		log.Debugf("Rejected request: %v", err)
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func originHost(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return parsed.Host
}
