package domain

import (
	"encoding/json"
	"time"
)

type SummaryStatus string

const (
	SummaryStatusDone   SummaryStatus = "done"
	SummaryStatusFailed SummaryStatus = "failed"
)

// SummaryRecord is one finished summarization run kept in history.
type SummaryRecord struct {
	ID           int64
	Owner        string
	Source       string
	Preset       string
	Status       SummaryStatus
	TotalChunks  int
	FailedChunks int
	Result       json.RawMessage
	Error        string
	CreatedAt    time.Time
}

type OwnerSettings struct {
	Owner  string
	Preset string
}

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a tutor conversation.
type ChatMessage struct {
	ID        int64
	Owner     string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}

// Memory is a curated question and answer the tutor prefers over its own
// knowledge.
type Memory struct {
	ID        int64
	Question  string
	Answer    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
