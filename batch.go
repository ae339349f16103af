package thumbnailer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultWaitSeconds = 5
	MaxWaitSeconds     = 20
	DefaultArchiveName = "thumbnails_result"
)

var (
	ErrEmptyBatch         = errors.New("no work items to capture")
	ErrInvalidWait        = fmt.Errorf("wait seconds must be between 0 and %d", MaxWaitSeconds)
	ErrInvalidArchiveName = errors.New("archive name must not contain path separators")
)

// WorkItem pairs an output filename (without extension) with the URL to capture.
type WorkItem struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Batch is an ordered set of work items captured together.
type Batch struct {
	ID          string
	Items       []WorkItem
	WaitSeconds int
	ArchiveName string
}

// NewBatch validates the configuration and freezes items into a Batch.
// An empty archive name falls back to DefaultArchiveName.
func NewBatch(items []WorkItem, waitSeconds int, archiveName string) (Batch, error) {
	if len(items) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	if waitSeconds < 0 || waitSeconds > MaxWaitSeconds {
		return Batch{}, fmt.Errorf("%w: got %d", ErrInvalidWait, waitSeconds)
	}

	name, err := NormalizeArchiveName(archiveName)
	if err != nil {
		return Batch{}, err
	}

	frozen := make([]WorkItem, len(items))
	copy(frozen, items)

	return Batch{
		ID:          uuid.NewString(),
		Items:       frozen,
		WaitSeconds: waitSeconds,
		ArchiveName: name,
	}, nil
}

// NormalizeArchiveName trims the name and drops a trailing ".zip".
func NormalizeArchiveName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".zip")
	if name == "" {
		return DefaultArchiveName, nil
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidArchiveName, name)
	}

	return name, nil
}

// Filenames returns the item filenames in batch order.
func (b Batch) Filenames() []string {
	names := make([]string, len(b.Items))
	for i, item := range b.Items {
		names[i] = item.Filename
	}
	return names
}

func (b Batch) ArchiveFilename() string {
	return b.ArchiveName + ".zip"
}
