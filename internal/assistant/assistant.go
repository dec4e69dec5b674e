package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"edumate/internal/chunk"
	"edumate/internal/domain"
	"edumate/internal/extract"
	"edumate/internal/llm"
	"edumate/internal/preset"
	"edumate/internal/summarizer"
)

// Summarizer runs the chunked pipeline. *summarizer.ChunkedSummarizer
// implements it.
type Summarizer interface {
	Run(ctx context.Context, req summarizer.Request) (*summarizer.Report, error)
	ChunkSize() int
}

type Store interface {
	SaveCredentials(ctx context.Context, creds llm.Credentials) error
	GetOwnerSettingsWithDefault(ctx context.Context, owner string, defaultPreset string) (*domain.OwnerSettings, error)
	UpsertOwnerSettings(ctx context.Context, ownerSettings *domain.OwnerSettings) error
	SaveSummary(ctx context.Context, record *domain.SummaryRecord) (int64, error)
	ListSummaries(ctx context.Context, owner string, limit int) ([]domain.SummaryRecord, error)
	DeleteSummary(ctx context.Context, owner string, id int64) (bool, error)

	SaveChatMessages(ctx context.Context, messages ...domain.ChatMessage) error
	RecentChatMessages(ctx context.Context, owner string, limit int) ([]domain.ChatMessage, error)
	DeleteChatMessages(ctx context.Context, owner string) (int64, error)

	ListMemories(ctx context.Context) ([]domain.Memory, error)
	CreateMemory(ctx context.Context, memory *domain.Memory) (int64, error)
	UpdateMemory(ctx context.Context, memory *domain.Memory) (bool, error)
	DeleteMemory(ctx context.Context, id int64) (bool, error)
}

type TextRequest struct {
	Owner string `validate:"required,max=128"`
	// Preset overrides the owner's preset when not empty.
	Preset string `validate:"max=64"`
	// Source names the text in history. Defaults to "text".
	Source     string `validate:"max=512"`
	Text       string `validate:"required"`
	OnProgress summarizer.ProgressFunc
}

type DocumentRequest struct {
	Owner      string    `validate:"required,max=128"`
	Preset     string    `validate:"max=64"`
	Name       string    `validate:"required,max=512"`
	Body       io.Reader `validate:"required"`
	OnProgress summarizer.ProgressFunc
}

type URLRequest struct {
	Owner      string `validate:"required,max=128"`
	Preset     string `validate:"max=64"`
	URL        string `validate:"required,max=2048,http_url"`
	OnProgress summarizer.ProgressFunc
}

type CredentialsRequest struct {
	BaseURL string `validate:"required,http_url"`
	APIKey  string `validate:"required,printascii"`
}

// Outcome is a finished summarization.
type Outcome struct {
	Preset       string
	Source       string
	Result       json.RawMessage
	Rendered     string
	Cached       bool
	TotalChunks  int
	FailedChunks []int
	// HistoryID is zero when the run could not be recorded.
	HistoryID int64
}

type Config struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	// ChatCallTimeout bounds one tutor reply. Zero means no timeout.
	ChatCallTimeout time.Duration
}

// Service ties extraction, presets, the chunked summarizer and history
// together and answers tutor chat messages. One summary and one chat reply
// per owner may be in flight at a time.
type Service struct {
	summarizer  Summarizer
	chat        llm.Client
	chatTimeout time.Duration
	extractor   *extract.Extractor
	presets     *preset.Registry
	store       Store
	cache       *resultCache
	validate    *validator.Validate
	now         func() time.Time
	log         *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(
	s Summarizer,
	chat llm.Client,
	extractor *extract.Extractor,
	presets *preset.Registry,
	store Store,
	cfg Config,
	log *slog.Logger,
) *Service {
	return &Service{
		summarizer:  s,
		chat:        chat,
		chatTimeout: cfg.ChatCallTimeout,
		extractor:   extractor,
		presets:     presets,
		store:       store,
		cache:       newResultCache(cfg.CacheMaxEntries, cfg.CacheTTL),
		validate:    validator.New(),
		now:         time.Now,
		log:         log,
		busy:        make(map[string]struct{}),
	}
}

func (s *Service) Presets() []*preset.Preset {
	return s.presets.All()
}

// OwnerPreset returns the preset selected by owner or the default one.
func (s *Service) OwnerPreset(ctx context.Context, owner string) (*preset.Preset, error) {
	settings, err := s.store.GetOwnerSettingsWithDefault(ctx, owner, preset.DefaultName)
	if err != nil {
		return nil, fmt.Errorf("get owner settings: %w", err)
	}

	p, err := s.presets.Get(settings.Preset)
	if err != nil {
		s.log.WarnContext(ctx, "Stored preset is unknown so default is used",
			"error", err,
			"owner", owner,
			"preset", settings.Preset)

		return s.presets.Get(preset.DefaultName)
	}

	return p, nil
}

func (s *Service) SetOwnerPreset(ctx context.Context, owner string, name string) (*preset.Preset, error) {
	p, err := s.presets.Get(name)
	if err != nil {
		return nil, err
	}

	if err = s.store.UpsertOwnerSettings(ctx, &domain.OwnerSettings{
		Owner:  owner,
		Preset: p.Name,
	}); err != nil {
		return nil, fmt.Errorf("upsert owner settings: %w", err)
	}

	return p, nil
}

func (s *Service) SetCredentials(ctx context.Context, req CredentialsRequest) error {
	req.BaseURL = strings.TrimSpace(req.BaseURL)
	req.APIKey = strings.TrimSpace(req.APIKey)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return s.store.SaveCredentials(ctx, llm.Credentials{
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
	})
}

func (s *Service) History(ctx context.Context, owner string, limit int) ([]domain.SummaryRecord, error) {
	return s.store.ListSummaries(ctx, owner, limit)
}

// Forget deletes one history record of owner and reports whether it existed.
func (s *Service) Forget(ctx context.Context, owner string, id int64) (bool, error) {
	return s.store.DeleteSummary(ctx, owner, id)
}

func (s *Service) SummarizeText(ctx context.Context, req TextRequest) (*Outcome, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, extract.ErrNoText)
	}

	release, err := s.acquire(req.Owner)
	if err != nil {
		return nil, err
	}
	defer release()

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "text"
	}

	return s.summarize(ctx, req.Owner, req.Preset, source, req.Text, req.OnProgress)
}

func (s *Service) SummarizeDocument(ctx context.Context, req DocumentRequest) (*Outcome, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if !extract.Supported(req.Name) {
		return nil, fmt.Errorf("summarize %s: %w", req.Name, extract.ErrUnsupportedType)
	}

	release, err := s.acquire(req.Owner)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.extractor.Extract(ctx, req.Name, req.Body)
	if err != nil {
		return nil, err
	}

	return s.summarize(ctx, req.Owner, req.Preset, doc.Name, doc.Text, req.OnProgress)
}

func (s *Service) SummarizeURL(ctx context.Context, req URLRequest) (*Outcome, error) {
	req.URL = strings.TrimSpace(req.URL)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	release, err := s.acquire(req.Owner)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.extractor.ExtractURL(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	return s.summarize(ctx, req.Owner, req.Preset, doc.Name, doc.Text, req.OnProgress)
}

func (s *Service) acquire(owner string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.busy[owner]; ok {
		return nil, ErrBusy
	}
	s.busy[owner] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.busy, owner)
		s.mu.Unlock()
	}, nil
}

func (s *Service) resolvePreset(ctx context.Context, owner string, name string) (*preset.Preset, error) {
	if strings.TrimSpace(name) == "" {
		return s.OwnerPreset(ctx, owner)
	}

	p, err := s.presets.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return p, nil
}

func (s *Service) summarize(
	ctx context.Context,
	owner string,
	presetName string,
	source string,
	text string,
	onProgress summarizer.ProgressFunc,
) (*Outcome, error) {
	p, err := s.resolvePreset(ctx, owner, presetName)
	if err != nil {
		return nil, err
	}

	key := resultCacheKey(p.Name, text)
	if hit, ok := s.cache.get(key, s.now()); ok {
		s.log.InfoContext(ctx, "Cached summary is used",
			"owner", owner,
			"preset", p.Name,
			"source", source)

		return &Outcome{
			Preset:       p.Name,
			Source:       source,
			Result:       hit.result,
			Rendered:     p.Render(hit.result),
			Cached:       true,
			TotalChunks:  hit.totalChunks,
			FailedChunks: hit.failedChunks,
		}, nil
	}

	report, err := s.summarizer.Run(ctx, summarizer.Request{
		Text:              text,
		ChunkSystemPrompt: p.ChunkSystemPrompt,
		FinalSystemPrompt: p.FinalSystemPrompt,
		OnProgress:        onProgress,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		record := &domain.SummaryRecord{
			Owner:       owner,
			Source:      source,
			Preset:      p.Name,
			Status:      domain.SummaryStatusFailed,
			TotalChunks: chunk.Count(text, s.summarizer.ChunkSize()),
			Error:       err.Error(),
		}
		if errors.Is(err, summarizer.ErrAllChunksFailed) {
			record.FailedChunks = record.TotalChunks
		}
		s.record(ctx, record)

		return nil, err
	}

	s.cache.set(key, cachedResult{
		result:       report.Result,
		totalChunks:  report.TotalChunks,
		failedChunks: report.FailedChunks,
	}, s.now())

	id := s.record(ctx, &domain.SummaryRecord{
		Owner:        owner,
		Source:       source,
		Preset:       p.Name,
		Status:       domain.SummaryStatusDone,
		TotalChunks:  report.TotalChunks,
		FailedChunks: len(report.FailedChunks),
		Result:       report.Result,
	})

	return &Outcome{
		Preset:       p.Name,
		Source:       source,
		Result:       report.Result,
		Rendered:     p.Render(report.Result),
		TotalChunks:  report.TotalChunks,
		FailedChunks: report.FailedChunks,
		HistoryID:    id,
	}, nil
}

func (s *Service) record(ctx context.Context, record *domain.SummaryRecord) int64 {
	record.CreatedAt = s.now()

	id, err := s.store.SaveSummary(context.WithoutCancel(ctx), record)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to save summary to history",
			"error", err,
			"owner", record.Owner,
			"source", record.Source,
			"status", string(record.Status))

		return 0
	}

	return id
}
