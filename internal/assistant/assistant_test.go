package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"edumate/internal/assistant"
	"edumate/internal/domain"
	"edumate/internal/extract"
	"edumate/internal/llm"
	"edumate/internal/preset"
	"edumate/internal/summarizer"
)

type memStore struct {
	mu       sync.Mutex
	creds    llm.Credentials
	presets  map[string]string
	records  []domain.SummaryRecord
	chat     []domain.ChatMessage
	memories []domain.Memory
	saveErr  error
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{presets: make(map[string]string)}
}

func (m *memStore) SaveCredentials(_ context.Context, creds llm.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = creds

	return nil
}

func (m *memStore) GetOwnerSettingsWithDefault(
	_ context.Context,
	owner string,
	defaultPreset string,
) (*domain.OwnerSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.presets[owner]
	if !ok {
		name = defaultPreset
	}

	return &domain.OwnerSettings{Owner: owner, Preset: name}, nil
}

func (m *memStore) UpsertOwnerSettings(_ context.Context, s *domain.OwnerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.presets[s.Owner] = s.Preset

	return nil
}

func (m *memStore) SaveSummary(_ context.Context, r *domain.SummaryRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return 0, m.saveErr
	}

	m.nextID++
	r.ID = m.nextID
	m.records = append(m.records, *r)

	return r.ID, nil
}

func (m *memStore) ListSummaries(_ context.Context, owner string, limit int) ([]domain.SummaryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SummaryRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Owner == owner {
			out = append(out, m.records[i])
		}
	}

	return out, nil
}

func (m *memStore) DeleteSummary(_ context.Context, owner string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.records {
		if r.ID == id && r.Owner == owner {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

func (m *memStore) SaveChatMessages(_ context.Context, messages ...domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	m.chat = append(m.chat, messages...)

	return nil
}

func (m *memStore) RecentChatMessages(_ context.Context, owner string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ChatMessage
	for _, msg := range m.chat {
		if msg.Owner == owner {
			out = append(out, msg)
		}
	}

	if len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

func (m *memStore) DeleteChatMessages(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		kept    []domain.ChatMessage
		deleted int64
	)
	for _, msg := range m.chat {
		if msg.Owner == owner {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	m.chat = kept

	return deleted, nil
}

func (m *memStore) ListMemories(context.Context) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.Memory(nil), m.memories...), nil
}

func (m *memStore) CreateMemory(_ context.Context, memory *domain.Memory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	stored := *memory
	stored.ID = m.nextID
	m.memories = append(m.memories, stored)

	return stored.ID, nil
}

func (m *memStore) UpdateMemory(_ context.Context, memory *domain.Memory) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.memories {
		if m.memories[i].ID == memory.ID {
			m.memories[i].Question = memory.Question
			m.memories[i].Answer = memory.Answer
			return true, nil
		}
	}

	return false, nil
}

func (m *memStore) DeleteMemory(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.memories {
		if m.memories[i].ID == id {
			m.memories = append(m.memories[:i], m.memories[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

func (m *memStore) snapshot() []domain.SummaryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.SummaryRecord(nil), m.records...)
}

// scriptedClient answers chunk calls with a fixed note and final calls with
// final. Chunks containing failMarker fail.
type scriptedClient struct {
	mu         sync.Mutex
	calls      int
	final      string
	failMarker string
	failFinal  bool
}

func (c *scriptedClient) Complete(_ context.Context, messages []llm.Message) llm.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	user := messages[len(messages)-1].Content

	if strings.HasPrefix(user, "Based on") {
		if c.failFinal {
			return llm.Fail("final is down")
		}

		return llm.Ok(c.final)
	}

	if c.failMarker != "" && strings.Contains(user, c.failMarker) {
		return llm.Fail("chunk is down")
	}

	return llm.Ok("note")
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func newService(t *testing.T, client llm.Client, store assistant.Store, chunkSize int) *assistant.Service {
	t.Helper()

	s, err := summarizer.New(client, slog.Default(), summarizer.WithChunkSize(chunkSize))
	if err != nil {
		t.Fatalf("create summarizer: %v", err)
	}

	return assistant.New(s, client, extract.New(slog.Default()), preset.Default(), store, assistant.Config{
		CacheTTL:        time.Hour,
		CacheMaxEntries: 8,
	}, slog.Default())
}

func TestSummarizeTextRecordsHistoryAndCaches(t *testing.T) {
	client := &scriptedClient{final: `{"summary":"short","keyPoints":["a"]}`}
	store := newMemStore()
	svc := newService(t, client, store, 10)
	ctx := context.Background()

	var progress []int
	req := assistant.TextRequest{
		Owner:      "tg:1",
		Text:       strings.Repeat("x", 25),
		OnProgress: func(completed, _ int) { progress = append(progress, completed) },
	}

	out, err := svc.SummarizeText(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Cached || out.TotalChunks != 3 || out.Preset != preset.DefaultName || out.Source != "text" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Rendered == "" || out.HistoryID == 0 {
		t.Fatalf("expected rendered text and history id, got %+v", out)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("unexpected progress: %v", progress)
	}
	if client.callCount() != 4 {
		t.Fatalf("expected 4 LLM calls, got %d", client.callCount())
	}

	again, err := svc.SummarizeText(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !again.Cached || string(again.Result) != string(out.Result) {
		t.Fatalf("expected cached outcome, got %+v", again)
	}
	if client.callCount() != 4 {
		t.Fatalf("expected no LLM calls for cached outcome, got %d", client.callCount())
	}

	records := store.snapshot()
	if len(records) != 1 || records[0].Status != domain.SummaryStatusDone || records[0].TotalChunks != 3 {
		t.Fatalf("unexpected history: %+v", records)
	}
}

func TestSummarizeTextRecordsFailures(t *testing.T) {
	client := &scriptedClient{final: `{}`, failMarker: "qqqqq"}
	store := newMemStore()
	svc := newService(t, client, store, 10)

	_, err := svc.SummarizeText(context.Background(), assistant.TextRequest{
		Owner: "tg:1",
		Text:  strings.Repeat("q", 15),
	})
	if !errors.Is(err, summarizer.ErrAllChunksFailed) {
		t.Fatalf("expected all chunks failed, got %v", err)
	}

	records := store.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one history record, got %d", len(records))
	}

	r := records[0]
	if r.Status != domain.SummaryStatusFailed || r.TotalChunks != 2 || r.FailedChunks != 2 || r.Error == "" {
		t.Fatalf("unexpected failure record: %+v", r)
	}
}

func TestSummarizeTextHistoryFailureIsNotReturned(t *testing.T) {
	client := &scriptedClient{final: `{"summary":"s"}`}
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	svc := newService(t, client, store, 100)

	out, err := svc.SummarizeText(context.Background(), assistant.TextRequest{Owner: "o", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.HistoryID != 0 {
		t.Fatalf("expected no history id, got %d", out.HistoryID)
	}
}

func TestSummarizeTextReduceParseFailure(t *testing.T) {
	client := &scriptedClient{final: "not json"}
	svc := newService(t, client, newMemStore(), 100)

	_, err := svc.SummarizeText(context.Background(), assistant.TextRequest{Owner: "o", Text: "hello"})

	var parseErr *summarizer.ReduceParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestSummarizeValidation(t *testing.T) {
	svc := newService(t, &scriptedClient{final: `{}`}, newMemStore(), 100)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "missing owner",
			run: func() error {
				_, err := svc.SummarizeText(ctx, assistant.TextRequest{Text: "hello"})
				return err
			},
			want: assistant.ErrInvalidRequest,
		},
		{
			name: "unknown preset",
			run: func() error {
				_, err := svc.SummarizeText(ctx, assistant.TextRequest{Owner: "o", Preset: "nope", Text: "hello"})
				return err
			},
			want: preset.ErrUnknownPreset,
		},
		{
			name: "unsupported document",
			run: func() error {
				_, err := svc.SummarizeDocument(ctx, assistant.DocumentRequest{
					Owner: "o",
					Name:  "slides.pptx",
					Body:  strings.NewReader("x"),
				})
				return err
			},
			want: extract.ErrUnsupportedType,
		},
		{
			name: "relative URL",
			run: func() error {
				_, err := svc.SummarizeURL(ctx, assistant.URLRequest{Owner: "o", URL: "/page"})
				return err
			},
			want: assistant.ErrInvalidRequest,
		},
		{
			name: "whitespace text",
			run: func() error {
				_, err := svc.SummarizeText(ctx, assistant.TextRequest{Owner: "o", Text: " \n\t "})
				return err
			},
			want: extract.ErrNoText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSummarizeDocument(t *testing.T) {
	client := &scriptedClient{final: `{"score":"80/100","summary":"fine"}`}
	store := newMemStore()
	svc := newService(t, client, store, 100)

	out, err := svc.SummarizeDocument(context.Background(), assistant.DocumentRequest{
		Owner:  "o",
		Preset: "grading",
		Name:   "essay.md",
		Body:   strings.NewReader("# Essay\n\nBody text."),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Source != "essay.md" || out.Preset != "grading" || out.TotalChunks != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

type blockingSummarizer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSummarizer) Run(context.Context, summarizer.Request) (*summarizer.Report, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release

	return &summarizer.Report{Result: []byte(`{}`), TotalChunks: 1}, nil
}

func (b *blockingSummarizer) ChunkSize() int {
	return 100
}

func TestBusyGuardIsPerOwner(t *testing.T) {
	b := &blockingSummarizer{started: make(chan struct{}, 1), release: make(chan struct{})}
	chat := llm.ClientFunc(func(context.Context, []llm.Message) llm.Result {
		return llm.Ok("answer")
	})
	svc := assistant.New(b, chat, extract.New(slog.Default()), preset.Default(), newMemStore(), assistant.Config{}, slog.Default())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.SummarizeText(ctx, assistant.TextRequest{Owner: "a", Text: "one"})
		done <- err
	}()

	<-b.started

	if _, err := svc.SummarizeText(ctx, assistant.TextRequest{Owner: "a", Text: "two"}); !errors.Is(err, assistant.ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}

	if _, err := svc.Chat(ctx, assistant.ChatRequest{Owner: "a", Message: "quick question"}); err != nil {
		t.Fatalf("expected chat to run next to a summary, got %v", err)
	}

	close(b.release)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.SummarizeText(ctx, assistant.TextRequest{Owner: "a", Text: "three"}); err != nil {
		t.Fatalf("expected owner to be released, got %v", err)
	}
}

func TestOwnerPresetAndCredentials(t *testing.T) {
	store := newMemStore()
	svc := newService(t, &scriptedClient{}, store, 100)
	ctx := context.Background()

	p, err := svc.OwnerPreset(ctx, "o")
	if err != nil || p.Name != preset.DefaultName {
		t.Fatalf("expected default preset, got %v, %v", p, err)
	}

	if _, err = svc.SetOwnerPreset(ctx, "o", "Grading"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err = svc.OwnerPreset(ctx, "o")
	if err != nil || p.Name != "grading" {
		t.Fatalf("expected grading preset, got %v, %v", p, err)
	}

	if _, err = svc.SetOwnerPreset(ctx, "o", "nope"); !errors.Is(err, preset.ErrUnknownPreset) {
		t.Fatalf("expected unknown preset error, got %v", err)
	}

	err = svc.SetCredentials(ctx, assistant.CredentialsRequest{BaseURL: "not a url", APIKey: "k"})
	if !errors.Is(err, assistant.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}

	err = svc.SetCredentials(ctx, assistant.CredentialsRequest{BaseURL: " https://llm.example/v1 ", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.creds.BaseURL != "https://llm.example/v1" {
		t.Fatalf("unexpected stored credentials: %+v", store.creds)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want assistant.ErrorKind
	}{
		{"busy", assistant.ErrBusy, assistant.KindBusy},
		{"invalid", fmt.Errorf("%w: owner", assistant.ErrInvalidRequest), assistant.KindInvalid},
		{"unsupported", fmt.Errorf("summarize a.pptx: %w", extract.ErrUnsupportedType), assistant.KindInvalid},
		{"no text", fmt.Errorf("extract a.pdf: %w", extract.ErrNoText), assistant.KindInvalid},
		{"all chunks", fmt.Errorf("%w: none of 3", summarizer.ErrAllChunksFailed), assistant.KindUpstream},
		{"reduce call", &summarizer.ReduceCallError{Reason: "timeout"}, assistant.KindUpstream},
		{"reduce parse", &summarizer.ReduceParseError{Reply: "x", Err: errors.New("bad")}, assistant.KindUpstream},
		{"chat", fmt.Errorf("%w: timeout", assistant.ErrChatFailed), assistant.KindUpstream},
		{"not found", fmt.Errorf("memory 3: %w", assistant.ErrNotFound), assistant.KindNotFound},
		{"other", errors.New("disk full"), assistant.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assistant.Classify(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
