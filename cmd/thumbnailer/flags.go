package main

import (
	"flag"
	"io"
)

// parseFlags parses args onto c. Values already held by c (from the
// environment) act as defaults.
func (c *cli) parseFlags(args []string) error {
	fs := flag.NewFlagSet("thumbnailer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// INPUT
	fs.StringVar(&c.Infile, "list", "", "")
	fs.StringVar(&c.Infile, "l", "", "")
	fs.StringVar(&c.Example, "example", "", "")
	fs.StringVar(&c.Example, "x", "", "")
	fs.StringVar(&c.Sheet, "sheet", "", "")
	fs.StringVar(&c.Sheet, "s", "", "")

	// CONFIGURATIONS
	fs.IntVar(&c.WaitSeconds, "wait", c.WaitSeconds, "")
	fs.IntVar(&c.WaitSeconds, "w", c.WaitSeconds, "")
	fs.StringVar(&c.Capture.Engine, "engine", c.Capture.Engine, "")
	fs.StringVar(&c.Capture.Engine, "e", c.Capture.Engine, "")
	fs.StringVar(&c.Capture.BrowserBin, "browser", c.Capture.BrowserBin, "")
	fs.StringVar(&c.Capture.BrowserBin, "b", c.Capture.BrowserBin, "")
	fs.IntVar(&c.Capture.Timeout, "timeout", c.Capture.Timeout, "")
	fs.IntVar(&c.Capture.Timeout, "to", c.Capture.Timeout, "")
	fs.StringVar(&c.Capture.UserAgent, "user-agent", c.Capture.UserAgent, "")
	fs.StringVar(&c.Capture.UserAgent, "ua", c.Capture.UserAgent, "")
	fs.BoolVar(&c.Capture.UseHTTP2, "use-http2", c.Capture.UseHTTP2, "")
	fs.BoolVar(&c.Capture.UseHTTP2, "uh", c.Capture.UseHTTP2, "")
	fs.IntVar(&c.Capture.CaptureWidth, "capture-width", c.Capture.CaptureWidth, "")
	fs.IntVar(&c.Capture.CaptureWidth, "cw", c.Capture.CaptureWidth, "")
	fs.IntVar(&c.Capture.CaptureHeight, "capture-height", c.Capture.CaptureHeight, "")
	fs.IntVar(&c.Capture.CaptureHeight, "ch", c.Capture.CaptureHeight, "")
	fs.BoolVar(&c.Capture.RespectCertificateErrors, "respect-cert-err", c.Capture.RespectCertificateErrors, "")
	fs.BoolVar(&c.Capture.RespectCertificateErrors, "rce", c.Capture.RespectCertificateErrors, "")
	fs.IntVar(&c.Options.SimilarityThreshold, "similarity-threshold", c.Options.SimilarityThreshold, "")
	fs.IntVar(&c.Options.SimilarityThreshold, "st", c.Options.SimilarityThreshold, "")

	// OUTPUT
	fs.StringVar(&c.ArchiveName, "name", c.ArchiveName, "")
	fs.StringVar(&c.ArchiveName, "n", c.ArchiveName, "")
	fs.StringVar(&c.Outfolder, "outfolder", c.Outfolder, "")
	fs.StringVar(&c.Outfolder, "o", c.Outfolder, "")
	fs.BoolVar(&c.Options.Label, "label", c.Options.Label, "")
	fs.BoolVar(&c.Options.Label, "lb", c.Options.Label, "")
	fs.BoolVar(&c.Options.Silence, "quiet", c.Options.Silence, "")
	fs.BoolVar(&c.Options.Silence, "q", c.Options.Silence, "")
	fs.BoolVar(&c.Options.Verbose, "debug", c.Options.Verbose, "")
	fs.BoolVar(&c.Version, "version", false, "")
	fs.BoolVar(&c.Help, "help", false, "")
	fs.BoolVar(&c.Help, "h", false, "")

	return fs.Parse(args)
}
