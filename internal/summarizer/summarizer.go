package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edumate/internal/chunk"
	"edumate/internal/llm"
)

const (
	// ResultSeparator joins chunk analyses before the final synthesis.
	ResultSeparator = "\n\n---\n\n"

	chunkLeadIn = "Analyze the following text fragment:"
	finalLeadIn = "Based on the key points below, extracted from every part of the original document, " +
		"produce the final consolidated analysis:"
)

// ProgressFunc receives the number of analyzed chunks after each chunk,
// whether it succeeded or not.
type ProgressFunc func(completed, total int)

// Request describes a single run.
type Request struct {
	// Text is the full source text.
	Text string
	// ChunkSystemPrompt instructs the model how to analyze one chunk.
	ChunkSystemPrompt string
	// FinalSystemPrompt instructs the model how to merge the chunk analyses
	// into a JSON document.
	FinalSystemPrompt string
	// OnProgress is optional.
	OnProgress ProgressFunc
}

// Report is the outcome of a successful run.
type Report struct {
	// Result is the parsed final reply.
	Result json.RawMessage
	// TotalChunks is the number of chunks the text was split into.
	TotalChunks int
	// FailedChunks lists indexes of chunks whose analysis failed.
	FailedChunks []int
}

type Option func(*ChunkedSummarizer)

func WithChunkSize(size int) Option {
	return func(s *ChunkedSummarizer) {
		s.chunkSize = size
	}
}

// WithCallTimeout bounds every single LLM call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(s *ChunkedSummarizer) {
		s.callTimeout = d
	}
}

func WithStateObserver(fn StateFunc) Option {
	return func(s *ChunkedSummarizer) {
		s.onState = fn
	}
}

// ChunkedSummarizer analyzes long text chunk by chunk and merges the
// analyses with one final call. Chunks are processed strictly one at a time
// and in order.
type ChunkedSummarizer struct {
	client      llm.Client
	chunkSize   int
	callTimeout time.Duration
	onState     StateFunc
	log         *slog.Logger
}

func New(client llm.Client, log *slog.Logger, opts ...Option) (*ChunkedSummarizer, error) {
	s := &ChunkedSummarizer{
		client:    client,
		chunkSize: chunk.DefaultSize,
		log:       log,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("create summarizer (chunkSize = %d): %w", s.chunkSize, chunk.ErrInvalidSize)
	}
	if s.callTimeout < 0 {
		return nil, fmt.Errorf("create summarizer: negative call timeout %s", s.callTimeout)
	}

	return s, nil
}

func (s *ChunkedSummarizer) ChunkSize() int {
	return s.chunkSize
}

// ProcessTextInChunks runs the pipeline and returns only the parsed result.
func (s *ChunkedSummarizer) ProcessTextInChunks(
	ctx context.Context,
	fullText string,
	chunkSystemPrompt string,
	finalSystemPrompt string,
	onProgress ProgressFunc,
) (json.RawMessage, error) {
	report, err := s.Run(ctx, Request{
		Text:              fullText,
		ChunkSystemPrompt: chunkSystemPrompt,
		FinalSystemPrompt: finalSystemPrompt,
		OnProgress:        onProgress,
	})
	if err != nil {
		return nil, err
	}

	return report.Result, nil
}

type run struct {
	state   State
	started time.Time
	results []string
	failed  []int
}

// Run executes one pipeline run. The run either returns a report with a
// parsed result or fails with ErrAllChunksFailed, *ReduceCallError,
// *ReduceParseError, or the context's error.
func (s *ChunkedSummarizer) Run(ctx context.Context, req Request) (*Report, error) {
	r := &run{state: StateIdle, started: time.Now()}

	s.enter(ctx, r, StateChunking, -1)

	chunks, err := chunk.Split(req.Text, s.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	total := len(chunks)

	s.log.InfoContext(ctx, "Summarization run is started",
		"textLength", len(req.Text),
		"chunkSize", s.chunkSize,
		"totalChunks", total)

	for _, c := range chunks {
		if err = ctx.Err(); err != nil {
			s.enter(ctx, r, StateCanceled, -1)

			return nil, fmt.Errorf("analyze chunk %d/%d: %w", c.Index+1, total, err)
		}

		s.enter(ctx, r, StateMappingChunk, c.Index)

		res := s.complete(ctx, []llm.Message{
			llm.SystemMessage(req.ChunkSystemPrompt),
			llm.UserMessage(chunkLeadIn + "\n\n" + c.Text),
		})
		if res.OK() {
			r.results = append(r.results, res.Text())
		} else {
			r.failed = append(r.failed, c.Index)
			s.log.WarnContext(ctx, "Failed to analyze chunk",
				"reason", res.Reason(),
				"chunkIndex", c.Index,
				"totalChunks", total)
		}

		if req.OnProgress != nil {
			req.OnProgress(c.Index+1, total)
		}
	}

	if err = ctx.Err(); err != nil {
		s.enter(ctx, r, StateCanceled, -1)

		return nil, fmt.Errorf("analyze chunks: %w", err)
	}

	if len(r.results) == 0 {
		s.enter(ctx, r, StateAllChunksFailed, -1)

		return nil, fmt.Errorf("%w: none of %d chunks could be analyzed", ErrAllChunksFailed, total)
	}

	s.enter(ctx, r, StateReducePending, -1)

	result, err := s.reduce(ctx, r, req.FinalSystemPrompt)
	if err != nil {
		return nil, err
	}

	s.enter(ctx, r, StateDone, -1)
	s.log.InfoContext(ctx, "Summarization run is done",
		"totalChunks", total,
		"failedChunks", len(r.failed),
		"durationSeconds", time.Since(r.started).Seconds())

	return &Report{
		Result:       result,
		TotalChunks:  total,
		FailedChunks: r.failed,
	}, nil
}

func (s *ChunkedSummarizer) reduce(ctx context.Context, r *run, finalSystemPrompt string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		s.enter(ctx, r, StateCanceled, -1)

		return nil, fmt.Errorf("final synthesis: %w", err)
	}

	s.enter(ctx, r, StateReducing, -1)

	combined := strings.Join(r.results, ResultSeparator)
	res := s.complete(ctx, []llm.Message{
		llm.SystemMessage(finalSystemPrompt),
		llm.UserMessage(finalLeadIn + "\n\n" + combined),
	})

	if !res.OK() {
		if err := ctx.Err(); err != nil {
			s.enter(ctx, r, StateCanceled, -1)

			return nil, fmt.Errorf("final synthesis: %w", err)
		}

		s.enter(ctx, r, StateReduceFailed, -1)
		s.log.ErrorContext(ctx, "Final synthesis failed",
			"reason", res.Reason(),
			"chunkResults", len(r.results))

		return nil, &ReduceCallError{Reason: res.Reason()}
	}

	reply := strings.TrimSpace(res.Text())

	var result json.RawMessage
	if err := json.Unmarshal([]byte(reply), &result); err != nil {
		s.enter(ctx, r, StateReduceFailed, -1)
		s.log.ErrorContext(ctx, "Final synthesis reply is not valid JSON",
			"error", err,
			"replyLength", len(reply))

		return nil, &ReduceParseError{Reply: reply, Err: err}
	}

	return result, nil
}

func (s *ChunkedSummarizer) complete(ctx context.Context, messages []llm.Message) llm.Result {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	return s.client.Complete(ctx, messages)
}

func (s *ChunkedSummarizer) enter(ctx context.Context, r *run, state State, chunkIndex int) {
	if r.state.Terminal() {
		return
	}
	r.state = state

	s.log.DebugContext(ctx, "Summarization run state is changed",
		"state", state.String(),
		"chunkIndex", chunkIndex)

	if s.onState != nil {
		s.onState(state, chunkIndex)
	}
}
