package thumbnailer

import (
	"context"
	"fmt"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer/pkg/archive"
	"github.com/root4loot/thumbnailer/pkg/screener"
	"github.com/root4loot/thumbnailer/pkg/thumbnail"
)

type Runner struct {
	Options *Options
	engine  screener.Engine
}

// Options contains options for the runner
type Options struct {
	Label               bool // Draw the filename onto each thumbnail
	SimilarityThreshold int  // Warn about near-identical thumbnails (1-100, 0 disables)
	Silence             bool // Silence output
	Verbose             bool // Verbose logging
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	return &Options{
		Label:               false,
		SimilarityThreshold: 0,
	}
}

// NewRunner returns a runner with default options that captures through engine.
func NewRunner(engine screener.Engine) *Runner {
	return &Runner{
		Options: DefaultOptions(),
		engine:  engine,
	}
}

// NewRunnerWithOptions returns a new runner with the specified options
func NewRunnerWithOptions(engine screener.Engine, options Options) *Runner {
	SetLogLevel(&options)

	return &Runner{
		Options: &options,
		engine:  engine,
	}
}

// Run captures every item of the batch in order with a single browser session
// and returns the finished archive and manifest. A failing item is reported and
// skipped; only browser launch, archive errors and a cancelled ctx abort the
// batch, in which case no payload is returned.
func (r *Runner) Run(ctx context.Context, batch Batch, reporter Reporter) (*Payload, error) {
	if len(batch.Items) == 0 {
		return nil, ErrEmptyBatch
	}
	if reporter == nil {
		reporter = MultiReporter()
	}

	var fingerprints *screener.Fingerprints
	if r.Options.SimilarityThreshold > 0 {
		var err error
		fingerprints, err = screener.NewFingerprints(r.Options.SimilarityThreshold)
		if err != nil {
			return nil, err
		}
	}

	log.Debugf("Launching browser for batch %s (%d items)", batch.ID, len(batch.Items))

	browser, err := r.engine.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not start browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warnf("Could not close browser: %v", err)
		}
	}()

	builder := archive.NewBuilder()
	payload := &Payload{
		BatchID:     batch.ID,
		ArchiveName: batch.ArchiveName,
		Total:       len(batch.Items),
		Manifest:    archive.Manifest(batch.Filenames()),
		Similar:     make(map[string]string),
	}

	delay := time.Duration(batch.WaitSeconds) * time.Second
	total := len(batch.Items)

	for i, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch interrupted at %s: %w", item.Filename, err)
		}

		reporter.ItemStarted(i, total, item)
		log.Debugf("Capturing %s (%s)", item.Filename, item.URL)

		result := r.capture(ctx, browser, item, delay)
		result.Index = i

		if result.OK() {
			if fingerprints != nil {
				if earlier, ok := fingerprints.Match(item.Filename, result.Thumbnail); ok {
					result.SimilarTo = earlier
					payload.Similar[item.Filename] = earlier
					log.Warnf("%s looks like %s; the page may not have rendered", item.Filename, earlier)
				}
			}

			if err := builder.Add(archive.EntryName(item.Filename), result.Thumbnail); err != nil {
				return nil, fmt.Errorf("could not write %s to archive: %w", item.Filename, err)
			}
		} else {
			message := ErrorMessage(result.Err)
			log.Errorf("Error capturing %s (%s): %s", item.Filename, item.URL, message)
			payload.Failures = append(payload.Failures, Failure{
				Index:    i,
				Filename: item.Filename,
				URL:      item.URL,
				Message:  message,
			})
		}

		reporter.ItemFinished(i, total, result)
	}

	payload.Entries = builder.Entries()
	payload.Archive, err = builder.Close()
	if err != nil {
		return nil, fmt.Errorf("could not finalize archive: %w", err)
	}
	payload.FinishedAt = time.Now().UTC()

	log.Debugf("Batch %s finished: %d/%d captured", batch.ID, payload.Entries, payload.Total)

	return payload, nil
}

// capture loads one item in the shared browser and encodes the thumbnail.
func (r *Runner) capture(ctx context.Context, browser screener.Browser, item WorkItem, delay time.Duration) CaptureResult {
	started := time.Now()
	result := CaptureResult{Item: item}

	img, err := browser.Capture(ctx, item.URL, delay)
	if err == nil {
		if r.Options.Label {
			result.Thumbnail, err = thumbnail.EncodeWithLabel(img, item.Filename)
		} else {
			result.Thumbnail, err = thumbnail.Encode(img)
		}
	}

	result.Err = err
	result.Duration = time.Since(started)
	return result
}

// SetLogLevel sets the log level based on the options
func SetLogLevel(options *Options) {
	if options.Silence {
		log.SetLevel(log.FatalLevel)
	} else if options.Verbose {
		log.SetLevel(log.DebugLevel)
	}
}
