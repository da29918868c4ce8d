// Package chat holds the conversation transcript: an ordered in-memory
// log driving the UI, plus an optional Postgres archive for finalized
// messages.
package chat

import (
	"sync"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a grounding citation attached to an assistant answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one entry in the conversation transcript.
type Message struct {
	ID      string   `json:"id"`
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`

	// Audio is the raw 24kHz PCM of a spoken assistant reply, kept so
	// the message can be replayed later.
	Audio []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Log is the ordered transcript. Voice turns are appended while still
// streaming and then updated in place as transcript deltas arrive, so
// lookups by ID have to stay cheap.
type Log struct {
	mu       sync.Mutex
	messages []Message
	index    map[string]int
}

// NewLog creates an empty transcript.
func NewLog() *Log {
	return &Log{index: make(map[string]int)}
}

// Append adds a message to the end of the transcript.
func (l *Log) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
}

// UpdateByID replaces the content of an existing message and, when
// audio is non-nil, attaches it. Unknown IDs are ignored: the turn a
// late delta belongs to may already have been torn down.
func (l *Log) UpdateByID(id, content string, audio []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return
	}
	l.messages[i].Content = content
	if audio != nil {
		l.messages[i].Audio = audio
	}
}

// Get returns the message with the given ID.
func (l *Log) Get(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.messages[i], true
}

// Messages returns a snapshot of the transcript in order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}
