package summarizer_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"edumate/internal/llm"
	"edumate/internal/summarizer"
)

const (
	chunkPrompt = "CHUNK PROMPT"
	finalPrompt = "FINAL PROMPT"
)

// scriptedClient answers chunk calls through onChunk and the final call
// through onFinal, recording every conversation it receives.
type scriptedClient struct {
	mu         sync.Mutex
	chunkCalls []string
	finalCalls []string
	onChunk    func(i int, text string) llm.Result
	onFinal    func(combined string) llm.Result
}

func (c *scriptedClient) Complete(ctx context.Context, messages []llm.Message) llm.Result {
	if len(messages) != 2 {
		return llm.Fail("unexpected conversation length")
	}

	c.mu.Lock()
	switch messages[0].Content {
	case chunkPrompt:
		i := len(c.chunkCalls)
		c.chunkCalls = append(c.chunkCalls, messages[1].Content)
		c.mu.Unlock()

		return c.onChunk(i, messages[1].Content)
	case finalPrompt:
		c.finalCalls = append(c.finalCalls, messages[1].Content)
		c.mu.Unlock()

		return c.onFinal(messages[1].Content)
	default:
		c.mu.Unlock()

		return llm.Fail("unexpected system prompt")
	}
}

func (c *scriptedClient) calls() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.chunkCalls), len(c.finalCalls)
}

func (c *scriptedClient) lastFinal() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.finalCalls) == 0 {
		return ""
	}

	return c.finalCalls[len(c.finalCalls)-1]
}

func summaryPerChunk(i int, _ string) llm.Result {
	return llm.Ok("summary-" + string(rune('0'+i)))
}

func okFinal(string) llm.Result {
	return llm.Ok(`{"result":"ok"}`)
}

func newSummarizer(t *testing.T, client llm.Client, opts ...summarizer.Option) *summarizer.ChunkedSummarizer {
	t.Helper()

	s, err := summarizer.New(client, slog.Default(), opts...)
	if err != nil {
		t.Fatalf("create summarizer: %v", err)
	}

	return s
}

func TestProcessTextInChunksEndToEnd(t *testing.T) {
	client := &scriptedClient{onChunk: summaryPerChunk, onFinal: okFinal}
	s := newSummarizer(t, client, summarizer.WithChunkSize(3000))

	text := strings.Repeat("a", 3000) + strings.Repeat("b", 3000) + strings.Repeat("c", 1000)

	result, err := s.ProcessTextInChunks(context.Background(), text, chunkPrompt, finalPrompt, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]string
	if err = json.Unmarshal(result, &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	if got["result"] != "ok" {
		t.Fatalf("unexpected result: %v", got)
	}

	chunkCalls, finalCalls := client.calls()
	if chunkCalls != 3 || finalCalls != 1 {
		t.Fatalf("expected 3 chunk calls and 1 final call, got %d and %d", chunkCalls, finalCalls)
	}

	wantLens := []int{3000, 3000, 1000}
	for i, msg := range client.chunkCalls {
		body := msg[strings.LastIndex(msg, "\n\n")+2:]
		if len(body) != wantLens[i] {
			t.Fatalf("chunk %d has length %d, want %d", i, len(body), wantLens[i])
		}
	}

	want := "summary-0" + summarizer.ResultSeparator + "summary-1" + summarizer.ResultSeparator + "summary-2"
	if !strings.HasSuffix(client.lastFinal(), want) {
		t.Fatalf("final message does not end with joined summaries:\n%s", client.lastFinal())
	}
}

func TestRunPreservesOrderWithVariableLatency(t *testing.T) {
	delays := []time.Duration{30 * time.Millisecond, 0, 15 * time.Millisecond, time.Millisecond}
	client := &scriptedClient{
		onChunk: func(i int, text string) llm.Result {
			time.Sleep(delays[i])
			return llm.Ok("part-" + text[len(text)-1:])
		},
		onFinal: okFinal,
	}
	s := newSummarizer(t, client, summarizer.WithChunkSize(2))

	if _, err := s.Run(context.Background(), summarizer.Request{
		Text:              "a1b2c3d4",
		ChunkSystemPrompt: chunkPrompt,
		FinalSystemPrompt: finalPrompt,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := client.lastFinal()
	positions := []int{
		strings.Index(final, "part-1"),
		strings.Index(final, "part-2"),
		strings.Index(final, "part-3"),
		strings.Index(final, "part-4"),
	}

	for i, pos := range positions {
		if pos < 0 {
			t.Fatalf("part-%d is missing from final message", i+1)
		}
		if i > 0 && pos <= positions[i-1] {
			t.Fatalf("part-%d appears before part-%d", i+1, i)
		}
	}
}

func TestRunToleratesPartialFailure(t *testing.T) {
	client := &scriptedClient{
		onChunk: func(i int, _ string) llm.Result {
			if i == 1 {
				return llm.Fail("rate limited")
			}
			return summaryPerChunk(i, "")
		},
		onFinal: okFinal,
	}
	s := newSummarizer(t, client, summarizer.WithChunkSize(4))

	report, err := s.Run(context.Background(), summarizer.Request{
		Text:              "aaaabbbbcccc",
		ChunkSystemPrompt: chunkPrompt,
		FinalSystemPrompt: finalPrompt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.TotalChunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", report.TotalChunks)
	}

	if len(report.FailedChunks) != 1 || report.FailedChunks[0] != 1 {
		t.Fatalf("expected chunk 1 to fail, got %v", report.FailedChunks)
	}

	want := "summary-0" + summarizer.ResultSeparator + "summary-2"
	final := client.lastFinal()
	if !strings.HasSuffix(final, want) {
		t.Fatalf("final message does not end with surviving summaries:\n%s", final)
	}

	if strings.Contains(final, "summary-1") {
		t.Fatalf("failed chunk leaked into final message")
	}
}

func TestRunFailsWhenAllChunksFail(t *testing.T) {
	client := &scriptedClient{
		onChunk: func(int, string) llm.Result { return llm.Fail("down") },
		onFinal: okFinal,
	}
	s := newSummarizer(t, client, summarizer.WithChunkSize(3))

	_, err := s.ProcessTextInChunks(context.Background(), "abcdefgh", chunkPrompt, finalPrompt, nil)
	if !errors.Is(err, summarizer.ErrAllChunksFailed) {
		t.Fatalf("expected ErrAllChunksFailed, got %v", err)
	}

	chunkCalls, finalCalls := client.calls()
	if chunkCalls != 3 {
		t.Fatalf("expected every chunk to be attempted, got %d calls", chunkCalls)
	}

	if finalCalls != 0 {
		t.Fatalf("expected final call to be skipped, got %d calls", finalCalls)
	}
}

func TestRunDistinguishesReduceFailures(t *testing.T) {
	t.Run("call failure", func(t *testing.T) {
		client := &scriptedClient{
			onChunk: summaryPerChunk,
			onFinal: func(string) llm.Result { return llm.Fail("HTTP 503") },
		}
		s := newSummarizer(t, client)

		_, err := s.ProcessTextInChunks(context.Background(), "text", chunkPrompt, finalPrompt, nil)

		var callErr *summarizer.ReduceCallError
		if !errors.As(err, &callErr) {
			t.Fatalf("expected ReduceCallError, got %v", err)
		}

		if callErr.Reason != "HTTP 503" {
			t.Fatalf("unexpected reason: %q", callErr.Reason)
		}

		var parseErr *summarizer.ReduceParseError
		if errors.As(err, &parseErr) {
			t.Fatalf("call failure must not be a parse failure")
		}
	})

	t.Run("parse failure", func(t *testing.T) {
		client := &scriptedClient{
			onChunk: summaryPerChunk,
			onFinal: func(string) llm.Result { return llm.Ok("Here is your summary: great document!") },
		}
		s := newSummarizer(t, client)

		_, err := s.ProcessTextInChunks(context.Background(), "text", chunkPrompt, finalPrompt, nil)

		var parseErr *summarizer.ReduceParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected ReduceParseError, got %v", err)
		}

		if parseErr.Reply != "Here is your summary: great document!" {
			t.Fatalf("unexpected reply: %q", parseErr.Reply)
		}

		var callErr *summarizer.ReduceCallError
		if errors.As(err, &callErr) {
			t.Fatalf("parse failure must not be a call failure")
		}
	})
}

func TestRunReportsProgressAfterEveryChunk(t *testing.T) {
	client := &scriptedClient{
		onChunk: func(i int, _ string) llm.Result {
			if i%2 == 0 {
				return llm.Fail("flaky")
			}
			return llm.Ok("ok")
		},
		onFinal: okFinal,
	}
	s := newSummarizer(t, client, summarizer.WithChunkSize(1))

	type progress struct{ completed, total int }
	var got []progress

	_, err := s.ProcessTextInChunks(context.Background(), "abcde", chunkPrompt, finalPrompt, func(completed, total int) {
		got = append(got, progress{completed, total})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("expected 5 progress calls, got %d", len(got))
	}

	for i, p := range got {
		if p.completed != i+1 || p.total != 5 {
			t.Fatalf("progress call %d was (%d, %d), want (%d, 5)", i, p.completed, p.total, i+1)
		}
	}
}

func TestRunStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		onChunk func(int, string) llm.Result
		onFinal func(string) llm.Result
		want    []summarizer.State
	}{
		{
			name:    "done",
			onChunk: summaryPerChunk,
			onFinal: okFinal,
			want: []summarizer.State{
				summarizer.StateChunking,
				summarizer.StateMappingChunk,
				summarizer.StateMappingChunk,
				summarizer.StateReducePending,
				summarizer.StateReducing,
				summarizer.StateDone,
			},
		},
		{
			name:    "all chunks failed",
			onChunk: func(int, string) llm.Result { return llm.Fail("down") },
			onFinal: okFinal,
			want: []summarizer.State{
				summarizer.StateChunking,
				summarizer.StateMappingChunk,
				summarizer.StateMappingChunk,
				summarizer.StateAllChunksFailed,
			},
		},
		{
			name:    "reduce failed",
			onChunk: summaryPerChunk,
			onFinal: func(string) llm.Result { return llm.Ok("not json") },
			want: []summarizer.State{
				summarizer.StateChunking,
				summarizer.StateMappingChunk,
				summarizer.StateMappingChunk,
				summarizer.StateReducePending,
				summarizer.StateReducing,
				summarizer.StateReduceFailed,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var states []summarizer.State
			var chunkIndexes []int

			client := &scriptedClient{onChunk: test.onChunk, onFinal: test.onFinal}
			s := newSummarizer(t, client,
				summarizer.WithChunkSize(2),
				summarizer.WithStateObserver(func(state summarizer.State, chunkIndex int) {
					states = append(states, state)
					if state == summarizer.StateMappingChunk {
						chunkIndexes = append(chunkIndexes, chunkIndex)
					}
				}),
			)

			_, _ = s.ProcessTextInChunks(context.Background(), "abcd", chunkPrompt, finalPrompt, nil)

			if len(states) != len(test.want) {
				t.Fatalf("expected states %v, got %v", test.want, states)
			}

			for i := range states {
				if states[i] != test.want[i] {
					t.Fatalf("expected states %v, got %v", test.want, states)
				}
			}

			if len(chunkIndexes) != 2 || chunkIndexes[0] != 0 || chunkIndexes[1] != 1 {
				t.Fatalf("unexpected mapped chunk indexes: %v", chunkIndexes)
			}
		})
	}
}

func TestRunStopsWhenContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &scriptedClient{
		onChunk: func(i int, _ string) llm.Result {
			if i == 0 {
				cancel()
			}
			return llm.Ok("ok")
		},
		onFinal: okFinal,
	}

	var last summarizer.State
	s := newSummarizer(t, client,
		summarizer.WithChunkSize(1),
		summarizer.WithStateObserver(func(state summarizer.State, _ int) { last = state }),
	)

	_, err := s.ProcessTextInChunks(ctx, "abc", chunkPrompt, finalPrompt, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	chunkCalls, finalCalls := client.calls()
	if chunkCalls != 1 || finalCalls != 0 {
		t.Fatalf("expected 1 chunk call and no final call, got %d and %d", chunkCalls, finalCalls)
	}

	if last != summarizer.StateCanceled {
		t.Fatalf("expected canceled state, got %s", last)
	}
}

func TestRunAppliesCallTimeout(t *testing.T) {
	var deadlines []bool
	client := llm.ClientFunc(func(ctx context.Context, messages []llm.Message) llm.Result {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)

		if messages[0].Content == finalPrompt {
			return llm.Ok(`{}`)
		}
		return llm.Ok("ok")
	})
	s := newSummarizer(t, client, summarizer.WithCallTimeout(time.Minute))

	if _, err := s.ProcessTextInChunks(context.Background(), "text", chunkPrompt, finalPrompt, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(deadlines) != 2 || !deadlines[0] || !deadlines[1] {
		t.Fatalf("expected every call to carry a deadline, got %v", deadlines)
	}
}

func TestRunWithEmptyTextFailsWithoutReduce(t *testing.T) {
	client := &scriptedClient{onChunk: summaryPerChunk, onFinal: okFinal}
	s := newSummarizer(t, client)

	var progressCalls int
	_, err := s.ProcessTextInChunks(context.Background(), "", chunkPrompt, finalPrompt, func(int, int) {
		progressCalls++
	})
	if !errors.Is(err, summarizer.ErrAllChunksFailed) {
		t.Fatalf("expected ErrAllChunksFailed, got %v", err)
	}

	if chunkCalls, finalCalls := client.calls(); chunkCalls+finalCalls != 0 {
		t.Fatalf("expected no LLM calls, got %d chunk and %d final", chunkCalls, finalCalls)
	}
	if progressCalls != 0 {
		t.Fatalf("expected no progress calls, got %d", progressCalls)
	}
}

func TestRunAnalyzesWhitespaceText(t *testing.T) {
	client := &scriptedClient{onChunk: summaryPerChunk, onFinal: okFinal}
	s := newSummarizer(t, client)

	if _, err := s.ProcessTextInChunks(context.Background(), "  \n\t ", chunkPrompt, finalPrompt, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if chunkCalls, finalCalls := client.calls(); chunkCalls != 1 || finalCalls != 1 {
		t.Fatalf("expected one chunk and one final call, got %d and %d", chunkCalls, finalCalls)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	client := &scriptedClient{}

	if _, err := summarizer.New(client, slog.Default(), summarizer.WithChunkSize(0)); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}

	if _, err := summarizer.New(client, slog.Default(), summarizer.WithCallTimeout(-time.Second)); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}
