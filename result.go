package thumbnailer

import (
	"errors"
	"time"
)

// CaptureResult is the outcome of one work item. Thumbnail is set on success,
// Err on failure.
type CaptureResult struct {
	Index     int
	Item      WorkItem
	Thumbnail []byte
	Err       error
	SimilarTo string // filename of an earlier, near-identical thumbnail
	Duration  time.Duration
}

func (r CaptureResult) OK() bool {
	return r.Err == nil
}

// Failure describes a work item that could not be captured.
type Failure struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Message  string `json:"message"`
}

// Payload holds the finished archive and manifest of a batch. It only ever
// lives in memory.
type Payload struct {
	BatchID     string
	ArchiveName string
	Archive     []byte
	Manifest    string
	Total       int
	Entries     int
	Failures    []Failure
	Similar     map[string]string
	FinishedAt  time.Time
}

func (p *Payload) ArchiveFilename() string {
	return p.ArchiveName + ".zip"
}

// ErrorMessage returns the innermost error text, which is what the browser
// engines put the useful detail into.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	rootErr := err
	for {
		unwrappedErr := errors.Unwrap(rootErr)
		if unwrappedErr == nil {
			break
		}
		rootErr = unwrappedErr
	}
	return rootErr.Error()
}
