package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer/internal/config"
	"github.com/root4loot/thumbnailer/pkg/screener"
)

type stubEngine struct{}

func (stubEngine) Launch(ctx context.Context) (screener.Browser, error) {
	return stubBrowser{}, nil
}

type stubBrowser struct{}

func (stubBrowser) Capture(ctx context.Context, url string, delay time.Duration) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 180))
	for y := 0; y < 180; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(len(url)), A: 255})
		}
	}
	return img, nil
}

func (stubBrowser) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Batch:   config.BatchConfig{WaitSeconds: 5, ArchiveName: "thumbnails_result"},
		Capture: screener.NewOptions(),
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	cli := newCLI(testConfig())
	args := []string{"-l", "urls.txt", "-x", "e_math_0001", "-w", "3", "-n", "lesson", "-o", "./output", "-e", "chromedp", "-lb", "-st", "90"}
	if err := cli.parseFlags(args); err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	if cli.Infile != "urls.txt" {
		t.Errorf("Expected Infile to be 'urls.txt', got %s", cli.Infile)
	}
	if cli.Example != "e_math_0001" {
		t.Errorf("Expected Example to be 'e_math_0001', got %s", cli.Example)
	}
	if cli.WaitSeconds != 3 {
		t.Errorf("Expected WaitSeconds to be 3, got %d", cli.WaitSeconds)
	}
	if cli.ArchiveName != "lesson" {
		t.Errorf("Expected ArchiveName to be 'lesson', got %s", cli.ArchiveName)
	}
	if cli.Outfolder != "./output" {
		t.Errorf("Expected Outfolder to be './output', got %s", cli.Outfolder)
	}
	if cli.Capture.Engine != screener.EngineChromedp {
		t.Errorf("Expected Engine to be chromedp, got %s", cli.Capture.Engine)
	}
	if !cli.Options.Label {
		t.Error("Expected Label to be set")
	}
	if cli.Options.SimilarityThreshold != 90 {
		t.Errorf("Expected SimilarityThreshold to be 90, got %d", cli.Options.SimilarityThreshold)
	}
}

func TestParseFlagsKeepsConfigDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.WaitSeconds = 7
	cfg.Capture.UserAgent = "agent/1.0"

	cli := newCLI(cfg)
	if err := cli.parseFlags([]string{"--sheet", "pages.xlsx", "--quiet"}); err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	if cli.Sheet != "pages.xlsx" {
		t.Errorf("Expected Sheet to be 'pages.xlsx', got %s", cli.Sheet)
	}
	if cli.WaitSeconds != 7 {
		t.Errorf("Expected WaitSeconds to stay 7, got %d", cli.WaitSeconds)
	}
	if cli.Capture.UserAgent != "agent/1.0" {
		t.Errorf("Expected UserAgent to stay 'agent/1.0', got %s", cli.Capture.UserAgent)
	}
	if cli.ArchiveName != "thumbnails_result" {
		t.Errorf("Expected ArchiveName to stay 'thumbnails_result', got %s", cli.ArchiveName)
	}
	if !cli.Options.Silence {
		t.Error("Expected Silence to be set")
	}
}

func TestParseFlagsUnknown(t *testing.T) {
	cli := newCLI(testConfig())
	if err := cli.parseFlags([]string{"--concurrency", "5"}); err == nil {
		t.Error("Expected an error for an unknown flag")
	}
}

func TestParseServeFlags(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Addr = "127.0.0.1:8501"
	cfg.Log.Level = "info"

	if err := parseServeFlags(cfg, []string{"--addr", ":9000", "--debug"}); err != nil {
		t.Fatalf("parseServeFlags returned error: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Expected Addr to be ':9000', got %s", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected Level to be 'debug', got %s", cfg.Log.Level)
	}
}

func TestResolveItemsFromList(t *testing.T) {
	cli := newCLI(testConfig())
	cli.Infile = writeFile(t, "urls.txt", "http://a.example/1 http://a.example/2\n\nsee http://a.example/3\n")
	cli.Example = "e_math_0009"

	items, err := cli.resolveItems(nil)
	if err != nil {
		t.Fatalf("resolveItems returned error: %v", err)
	}

	want := []string{"e_math_0009", "e_math_0010", "e_math_0011"}
	if len(items) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(items))
	}
	for i, item := range items {
		if item.Filename != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], item.Filename)
		}
	}
	if items[2].URL != "http://a.example/3" {
		t.Errorf("Expected third URL to be http://a.example/3, got %s", items[2].URL)
	}
}

func TestResolveItemsFromStdin(t *testing.T) {
	cli := newCLI(testConfig())
	cli.Example = "page_1"

	items, err := cli.resolveItems(strings.NewReader("http://b.example/x\nhttp://b.example/y\n"))
	if err != nil {
		t.Fatalf("resolveItems returned error: %v", err)
	}
	if len(items) != 2 || items[1].Filename != "page_2" {
		t.Errorf("Unexpected items: %+v", items)
	}
}

func TestResolveItemsRequiresExample(t *testing.T) {
	cli := newCLI(testConfig())
	if _, err := cli.resolveItems(strings.NewReader("http://b.example/x")); err == nil {
		t.Error("Expected an error without an example filename")
	}
}

func TestResolveItemsFromSheet(t *testing.T) {
	cli := newCLI(testConfig())
	cli.Sheet = writeFile(t, "pages.csv", "Filename,URL\ncover,http://c.example/\nintro,http://c.example/intro\n")

	items, err := cli.resolveItems(nil)
	if err != nil {
		t.Fatalf("resolveItems returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Filename != "cover" || items[1].URL != "http://c.example/intro" {
		t.Errorf("Unexpected items: %+v", items)
	}
}

func useStubEngine(t *testing.T) {
	t.Helper()
	original := newEngine
	newEngine = func(options screener.CaptureOptions) (screener.Engine, error) {
		return stubEngine{}, nil
	}
	t.Cleanup(func() { newEngine = original })
}

// captureOutput runs fn with os.Stdout and the logger redirected and returns
// what each received.
func captureOutput(t *testing.T, fn func()) (stdout, logs string) {
	t.Helper()

	level := log.GetLevel()
	defer log.SetLevel(level)

	var logBuf bytes.Buffer
	logger := log.WithFields(nil).Logger
	logger.SetOutput(&logBuf)
	defer logger.SetOutput(os.Stderr)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	original := os.Stdout
	os.Stdout = w

	done := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()

	func() {
		defer func() {
			os.Stdout = original
			w.Close()
		}()
		fn()
	}()

	return <-done, logBuf.String()
}

func newRunCLI(t *testing.T) *cli {
	t.Helper()
	cli := newCLI(testConfig())
	cli.Example = "slide_01"
	cli.ArchiveName = "deck.zip"
	cli.Outfolder = filepath.Join(t.TempDir(), "nested", "out")
	cli.WaitSeconds = 0
	return cli
}

const deckURLs = "http://d.example/1\nhttp://d.example/2\n"

func TestRun(t *testing.T) {
	useStubEngine(t)

	cli := newRunCLI(t)
	cli.Options.Silence = true

	var runErr error
	stdout, _ := captureOutput(t, func() {
		runErr = cli.run(context.Background(), strings.NewReader(deckURLs), os.Stdout)
	})
	if runErr != nil {
		t.Fatalf("run returned error: %v", runErr)
	}

	manifest := "slide_01.jpg\nslide_02.jpg"
	if stdout != manifest+"\n" {
		t.Errorf("Expected only the manifest on stdout, got %q", stdout)
	}

	data, err := os.ReadFile(filepath.Join(cli.Outfolder, "deck.txt"))
	if err != nil {
		t.Fatalf("Failed to read manifest file: %v", err)
	}
	if string(data) != manifest {
		t.Errorf("Expected manifest file %q, got %q", manifest, string(data))
	}

	info, err := os.Stat(filepath.Join(cli.Outfolder, "deck.zip"))
	if err != nil {
		t.Fatalf("Failed to stat archive: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected a non-empty archive")
	}
}

func TestRunQuietLogsNothing(t *testing.T) {
	useStubEngine(t)

	cli := newRunCLI(t)
	if err := cli.parseFlags([]string{"-q"}); err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	var runErr error
	_, logs := captureOutput(t, func() {
		log.SetLevel(log.InfoLevel)
		runErr = cli.run(context.Background(), strings.NewReader(deckURLs), os.Stdout)
	})
	if runErr != nil {
		t.Fatalf("run returned error: %v", runErr)
	}
	if logs != "" {
		t.Errorf("Expected no log output with -q, got %q", logs)
	}
}

func TestRunLogsPaths(t *testing.T) {
	useStubEngine(t)

	cli := newRunCLI(t)

	var runErr error
	stdout, logs := captureOutput(t, func() {
		log.SetLevel(log.InfoLevel)
		runErr = cli.run(context.Background(), strings.NewReader(deckURLs), os.Stdout)
	})
	if runErr != nil {
		t.Fatalf("run returned error: %v", runErr)
	}

	for _, want := range []string{"2 URLs detected", "Archive saved to", "Manifest saved to"} {
		if !strings.Contains(logs, want) {
			t.Errorf("Expected %q in log output, got %q", want, logs)
		}
		if strings.Contains(stdout, want) {
			t.Errorf("Expected %q to stay off stdout, got %q", want, stdout)
		}
	}
}

func TestRunDebugListsFiles(t *testing.T) {
	useStubEngine(t)

	cli := newRunCLI(t)
	if err := cli.parseFlags([]string{"--debug"}); err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	var runErr error
	_, logs := captureOutput(t, func() {
		log.SetLevel(log.InfoLevel)
		runErr = cli.run(context.Background(), strings.NewReader(deckURLs), os.Stdout)
	})
	if runErr != nil {
		t.Fatalf("run returned error: %v", runErr)
	}

	listed := strings.Index(logs, "slide_01.jpg <- http://d.example/1")
	launched := strings.Index(logs, "Launching browser")
	if listed < 0 {
		t.Fatalf("Expected the resolved file list in debug output, got %q", logs)
	}
	if launched >= 0 && launched < listed {
		t.Errorf("Expected the file list before the browser launch")
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	useStubEngine(t)

	tests := []struct {
		name string
		args []string
	}{
		{"negative similarity", []string{"-st", "-5"}},
		{"similarity above 100", []string{"-st", "101"}},
		{"zero timeout", []string{"-to", "0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cli := newRunCLI(t)
			if err := cli.parseFlags(append(tc.args, "-q")); err != nil {
				t.Fatalf("parseFlags returned error: %v", err)
			}

			var runErr error
			captureOutput(t, func() {
				runErr = cli.run(context.Background(), strings.NewReader(deckURLs), os.Stdout)
			})
			if runErr == nil {
				t.Fatal("Expected an error")
			}
			if _, err := os.Stat(cli.Outfolder); !os.IsNotExist(err) {
				t.Errorf("Expected no output folder after rejected options")
			}
		})
	}
}
