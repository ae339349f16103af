package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/root4loot/goutils/fileutil"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer"
	"github.com/root4loot/thumbnailer/internal/config"
	"github.com/root4loot/thumbnailer/internal/report"
	"github.com/root4loot/thumbnailer/pkg/input"
	"github.com/root4loot/thumbnailer/pkg/screener"
)

const (
	author  = "@danielantonsen"
	version = "0.1.0"
	usage   = `USAGE:
  thumbnailer [options] (-l <urls.txt> | stdin) -x <example_filename>
  thumbnailer [options] -s <sheet.xlsx|sheet.csv>
  thumbnailer serve [--addr <host:port>] [--debug]

INPUT:
  -l,   --list                   text file containing URLs (any layout, tokens starting with http)
  -x,   --example                example filename for the first URL, e.g. e_english_k_5_0001
  -s,   --sheet                  spreadsheet with a header row and (filename, url) rows

CONFIGURATIONS:
  -w,   --wait                   seconds to wait after each page has loaded (0-20)    (Default: 5)
  -e,   --engine                 browser engine (rod, chromedp)                      (Default: rod)
  -b,   --browser                browser executable                                  (Default: /usr/bin/chromium if present)
  -to,  --timeout                page load timeout (seconds)                         (Default: 30)
  -ua,  --user-agent             specify user agent                                  (Default: browser UA)
  -uh,  --use-http2              use HTTP2                                           (Default: true)
  -cw,  --capture-width          viewport width                                      (Default: 1920)
  -ch,  --capture-height         viewport height                                     (Default: 1080)
  -rce, --respect-cert-err       respect certificate errors                          (Default: false)
  -st,  --similarity-threshold   warn when thumbnails are this similar (1-100, 0 off) (Default: 0)

OUTPUT:
  -n,   --name                   archive name                                        (Default: thumbnails_result)
  -o,   --outfolder              write <name>.zip and <name>.txt to this folder      (Default: .)
  -lb,  --label                  draw the filename onto each thumbnail               (Default: false)
  -q,   --quiet                  only print the manifest
        --debug                  enable debug mode
        --version                display version

Settings also load from the environment and a .env file.
`
)

// newEngine is replaced in tests.
var newEngine = screener.NewEngine

type cli struct {
	Infile      string
	Sheet       string
	Example     string
	ArchiveName string
	Outfolder   string
	WaitSeconds int
	Capture     screener.CaptureOptions
	Options     thumbnailer.Options
	Help        bool
	Version     bool
}

func init() {
	log.Init("thumbnailer")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	cfg.ApplyLogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "serve" {
		if err := runServe(ctx, cfg, os.Args[2:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	cli := newCLI(cfg)
	if err := cli.parseFlags(os.Args[1:]); err != nil {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cli.checkForExits()

	var stdin io.Reader
	if cli.hasStdin() {
		stdin = os.Stdin
	}

	if err := cli.run(ctx, stdin, os.Stdout); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func newCLI(cfg *config.Config) *cli {
	return &cli{
		ArchiveName: cfg.Batch.ArchiveName,
		Outfolder:   ".",
		WaitSeconds: cfg.Batch.WaitSeconds,
		Capture:     cfg.Capture,
		Options:     cfg.Runner,
	}
}

// checkForExits handles -h|--help and --version and a missing input.
func (c *cli) checkForExits() {
	if c.Help {
		fmt.Print(usage)
		os.Exit(0)
	}
	if c.Version {
		fmt.Println("thumbnailer", version, "by", author)
		os.Exit(0)
	}

	if !c.hasStdin() && !c.hasInfile() && !c.hasSheet() {
		log.Error("No input specified")
		fmt.Print(usage)
		os.Exit(1)
	}
}

// run captures the batch described by the flags (or stdin) and writes the
// archive and manifest to the output folder.
func (c *cli) run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	thumbnailer.SetLogLevel(&c.Options)

	if err := c.validate(); err != nil {
		return err
	}

	items, err := c.resolveItems(stdin)
	if err != nil {
		return err
	}

	log.Infof("%d URLs detected", len(items))
	for _, item := range items {
		log.Debugf("%s.jpg <- %s", item.Filename, item.URL)
	}

	batch, err := thumbnailer.NewBatch(items, c.WaitSeconds, c.ArchiveName)
	if err != nil {
		return err
	}

	engine, err := newEngine(c.Capture)
	if err != nil {
		return err
	}

	runner := thumbnailer.NewRunnerWithOptions(engine, c.Options)
	payload, err := runner.Run(ctx, batch, report.NewTerminal(os.Stderr, !c.Options.Silence))
	if err != nil {
		return err
	}

	zipPath, manifestPath, err := writeOutputs(c.Outfolder, payload)
	if err != nil {
		return err
	}

	if !c.Options.Silence {
		fmt.Fprintln(os.Stderr, report.Summary(payload))
	}
	fmt.Fprintln(stdout, payload.Manifest)

	log.Infof("Archive saved to %s", zipPath)
	log.Infof("Manifest saved to %s", manifestPath)
	return nil
}

// validate rejects option values that would otherwise only fail, or be
// ignored, once the browser is running.
func (c *cli) validate() error {
	if t := c.Options.SimilarityThreshold; t < 0 || t > 100 {
		return fmt.Errorf("invalid similarity threshold %d: must be between 0 and 100", t)
	}
	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %d: must be at least one second", c.Capture.Timeout)
	}
	return nil
}

// resolveItems reads the work items from the sheet, the list file or stdin,
// in that order of preference.
func (c *cli) resolveItems(stdin io.Reader) ([]thumbnailer.WorkItem, error) {
	if c.hasSheet() {
		f, err := os.Open(c.Sheet)
		if err != nil {
			return nil, fmt.Errorf("could not open sheet: %w", err)
		}
		defer f.Close()
		return input.ReadTable(f, c.Sheet)
	}

	var text string
	switch {
	case c.hasInfile():
		lines, err := fileutil.ReadFile(c.Infile)
		if err != nil {
			return nil, fmt.Errorf("could not read list: %w", err)
		}
		text = strings.Join(lines, "\n")
	case stdin != nil:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("could not read stdin: %w", err)
		}
		text = string(data)
	default:
		return nil, input.ErrNoURLs
	}

	if strings.TrimSpace(c.Example) == "" {
		return nil, errors.New("an example filename is required with a URL list (-x)")
	}
	return input.FromText(text, c.Example)
}

// writeOutputs writes <name>.zip and <name>.txt into folder.
func writeOutputs(folder string, payload *thumbnailer.Payload) (string, string, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", "", fmt.Errorf("could not create output folder: %w", err)
	}

	zipPath := filepath.Join(folder, payload.ArchiveFilename())
	if err := os.WriteFile(zipPath, payload.Archive, 0o644); err != nil {
		return "", "", fmt.Errorf("could not write archive: %w", err)
	}

	manifestPath := filepath.Join(folder, payload.ArchiveName+".txt")
	if err := os.WriteFile(manifestPath, []byte(payload.Manifest), 0o644); err != nil {
		return "", "", fmt.Errorf("could not write manifest: %w", err)
	}

	return zipPath, manifestPath, nil
}

// hasStdin determines if the user has piped input
func (c *cli) hasStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	mode := stat.Mode()

	isPipedFromChrDev := (mode & os.ModeCharDevice) == 0
	isPipedFromFIFO := (mode & os.ModeNamedPipe) != 0

	return isPipedFromChrDev || isPipedFromFIFO
}

func (c *cli) hasInfile() bool {
	return c.Infile != ""
}

func (c *cli) hasSheet() bool {
	return c.Sheet != ""
}
