package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/root4loot/thumbnailer"
	"github.com/root4loot/thumbnailer/pkg/input"
)

const (
	modeText  = "text"
	modeTable = "table"
)

var (
	errUnknownMode = errors.New("mode must be text or table")
	errMissingFile = errors.New("no spreadsheet uploaded")
)

// batchRequest is the operator input shared by preview and batch creation.
type batchRequest struct {
	Mode        string
	Items       []thumbnailer.WorkItem
	WaitSeconds int
	ArchiveName string
}

// parseBatchRequest reads a urlencoded or multipart form. Fields: mode,
// urls and example for text mode, file for table mode, wait_seconds and
// archive_name for both.
func (s *Server) parseBatchRequest(w http.ResponseWriter, r *http.Request) (batchRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(s.maxUploadBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return batchRequest{}, err
	}

	req := batchRequest{
		Mode:        strings.ToLower(strings.TrimSpace(r.FormValue("mode"))),
		WaitSeconds: s.defaults.WaitSeconds,
		ArchiveName: r.FormValue("archive_name"),
	}
	if req.Mode == "" {
		req.Mode = modeText
	}
	if strings.TrimSpace(req.ArchiveName) == "" {
		req.ArchiveName = s.defaults.ArchiveName
	}

	if raw := strings.TrimSpace(r.FormValue("wait_seconds")); raw != "" {
		req.WaitSeconds, err = strconv.Atoi(raw)
		if err != nil {
			return batchRequest{}, fmt.Errorf("%w: %q", thumbnailer.ErrInvalidWait, raw)
		}
	}

	switch req.Mode {
	case modeText:
		req.Items, err = input.FromText(r.FormValue("urls"), r.FormValue("example"))
	case modeTable:
		req.Items, err = s.readUploadedTable(r)
	default:
		err = fmt.Errorf("%w: got %q", errUnknownMode, req.Mode)
	}
	if err != nil {
		return batchRequest{}, err
	}

	return req, nil
}

func (s *Server) readUploadedTable(r *http.Request) ([]thumbnailer.WorkItem, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, errMissingFile
		}
		return nil, err
	}
	defer file.Close()

	return input.ReadTable(file, header.Filename)
}

// isInputError reports whether err was caused by operator input rather than
// by the server.
func isInputError(err error) bool {
	for _, target := range []error{
		input.ErrNoURLs,
		input.ErrNoTrailingDigits,
		input.ErrMalformedTable,
		thumbnailer.ErrEmptyBatch,
		thumbnailer.ErrInvalidWait,
		thumbnailer.ErrInvalidArchiveName,
		errUnknownMode,
		errMissingFile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
