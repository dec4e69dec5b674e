// Command summarize runs one chunked summarization over a file or a URL and
// prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"edumate/internal/chunk"
	"edumate/internal/config"
	"edumate/internal/extract"
	"edumate/internal/llm"
	"edumate/internal/preset"
	"edumate/internal/summarizer"
)

const (
	exitOK      = 0
	exitUsage   = 2
	exitFailure = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	preset    string
	chunkSize int
	raw       bool
	verbose   bool
	source    string
}

func parseFlags(args []string, stderr io.Writer, defaultChunkSize int) (*options, error) {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: summarize [flags] <file or https URL>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.preset, "preset", preset.DefaultName, "preset name, see -preset list")
	fs.IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "maximum characters per chunk")
	fs.BoolVar(&opts.raw, "raw", false, "print the raw JSON result instead of rendered text")
	fs.BoolVar(&opts.verbose, "v", false, "log to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.preset != "list" {
		if fs.NArg() != 1 {
			fs.Usage()
			return nil, errors.New("exactly one file or URL is required")
		}
		opts.source = fs.Arg(0)
	}

	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}

	opts, err := parseFlags(args, stderr, cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	presets := preset.Default()

	if opts.preset == "list" {
		for _, p := range presets.All() {
			fmt.Fprintf(stdout, "%-14s %s\n", p.Name, p.Description)
		}
		return exitOK
	}

	p, err := presets.Get(opts.preset)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitUsage
	}

	logHandler := slog.NewJSONHandler(io.Discard, nil)
	if opts.verbose {
		logHandler = slog.NewJSONHandler(stderr, nil)
	}
	log := slog.New(logHandler)

	client := llm.NewOpenAIClient(cfg.Credentials(), cfg.OpenAI(), log)

	s, err := summarizer.New(client, log,
		summarizer.WithChunkSize(opts.chunkSize),
		summarizer.WithCallTimeout(cfg.LLMCallTimeout))
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitUsage
	}

	return summarize(ctx, s, extract.New(log), p, opts, stdout, stderr)
}

func summarize(
	ctx context.Context,
	s *summarizer.ChunkedSummarizer,
	extractor *extract.Extractor,
	p *preset.Preset,
	opts *options,
	stdout io.Writer,
	stderr io.Writer,
) int {
	doc, err := load(ctx, extractor, opts.source)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}

	fmt.Fprintf(stderr, "%s: %d parts\n", doc.Name, chunk.Count(doc.Text, opts.chunkSize))

	report, err := s.Run(ctx, summarizer.Request{
		Text:              doc.Text,
		ChunkSystemPrompt: p.ChunkSystemPrompt,
		FinalSystemPrompt: p.FinalSystemPrompt,
		OnProgress: func(completed, total int) {
			fmt.Fprintf(stderr, "Analyzing part %d/%d\n", completed, total)
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}

	if n := len(report.FailedChunks); n > 0 {
		fmt.Fprintf(stderr, "%d of %d parts could not be analyzed\n", n, report.TotalChunks)
	}

	if opts.raw {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err = enc.Encode(report.Result); err != nil {
			fmt.Fprintf(stderr, "write result: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	fmt.Fprintln(stdout, p.Render(report.Result))

	return exitOK
}

func load(ctx context.Context, extractor *extract.Extractor, source string) (*extract.Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return extractor.ExtractURL(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source, err)
	}
	defer f.Close()

	return extractor.Extract(ctx, source, f)
}
