package live

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/focusflow/focusflow-go/pkg/chat"
)

// PlaceholderReply is stored for a spoken turn that produced no
// transcription text.
const PlaceholderReply = "(Voice reply)"

// Sink receives reconstructed transcript messages. *chat.Log satisfies
// it.
type Sink interface {
	Append(msg chat.Message)
	UpdateByID(id, content string, audio []byte)
}

// TurnRecorder folds the streaming event sequence of a live
// conversation back into whole transcript turns. At most one user
// turn and one assistant turn are open at a time; transcript deltas
// replace the open message's content rather than appending new
// messages.
type TurnRecorder struct {
	sink      Sink
	onCaption func(string)
	now       func() time.Time

	mu       sync.Mutex
	userID   string
	userText strings.Builder

	assistantID   string
	assistantText strings.Builder
	audioChunks   [][]byte

	// completed latches after finalize so a repeated turn-complete
	// signal cannot write a second message for the same turn.
	completed bool
}

// NewTurnRecorder creates a recorder writing to sink. onCaption, when
// non-nil, mirrors the assistant's running transcription for a live
// caption display.
func NewTurnRecorder(sink Sink, onCaption func(string)) *TurnRecorder {
	return &TurnRecorder{
		sink:      sink,
		onCaption: onCaption,
		now:       time.Now,
	}
}

// Handle processes one session event. Events must arrive in session
// order. Handle holds the recorder lock for the duration of the sink
// call, so a teardown Reset on another goroutine waits for the event
// in flight instead of racing it.
func (r *TurnRecorder) Handle(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := event.(type) {
	case TranscriptDeltaEvent:
		r.completed = false
		switch e.Speaker {
		case SpeakerUser:
			r.handleUserDelta(e.Text)
		case SpeakerAssistant:
			r.handleAssistantDelta(e.Text)
		}
	case AudioChunkEvent:
		r.completed = false
		r.audioChunks = append(r.audioChunks, e.Data)
	case InterruptedEvent:
		// Unplayed audio is gone; the transcription of what was
		// already spoken stays.
		r.audioChunks = nil
	case TurnCompleteEvent:
		r.finalize()
	case ClosedEvent:
		r.resetLocked()
	}
}

func (r *TurnRecorder) handleUserDelta(text string) {
	r.userText.WriteString(text)
	if r.userID == "" {
		r.userID = fmt.Sprintf("voice-u-%d", r.now().UnixNano())
		r.sink.Append(chat.Message{
			ID:      r.userID,
			Role:    chat.RoleUser,
			Content: r.userText.String(),
		})
		return
	}
	r.sink.UpdateByID(r.userID, r.userText.String(), nil)
}

func (r *TurnRecorder) handleAssistantDelta(text string) {
	r.assistantText.WriteString(text)
	if r.assistantID == "" {
		r.assistantID = fmt.Sprintf("voice-a-%d", r.now().UnixNano())
		r.sink.Append(chat.Message{
			ID:      r.assistantID,
			Role:    chat.RoleAssistant,
			Content: r.assistantText.String(),
		})
	} else {
		r.sink.UpdateByID(r.assistantID, r.assistantText.String(), nil)
	}
	r.caption(r.assistantText.String())
}

// finalize closes the open turns: the assistant message gets its full
// text (or the placeholder) plus the concatenated turn audio. A turn
// with nothing spoken still yields one placeholder message, but a
// repeated turn-complete signal writes nothing further.
func (r *TurnRecorder) finalize() {
	if r.completed {
		return
	}

	content := r.assistantText.String()
	if content == "" {
		content = PlaceholderReply
	}
	combined := concatChunks(r.audioChunks)

	if r.assistantID == "" {
		r.sink.Append(chat.Message{
			ID:      fmt.Sprintf("voice-a-%d", r.now().UnixNano()),
			Role:    chat.RoleAssistant,
			Content: content,
			Audio:   combined,
		})
	} else {
		r.sink.UpdateByID(r.assistantID, content, combined)
	}

	r.clear()
	r.completed = true
}

// Reset drops all open turn state without writing anything. The
// current turn counts as closed: a turn-complete arriving after a
// teardown writes nothing.
func (r *TurnRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *TurnRecorder) resetLocked() {
	r.clear()
	r.completed = true
}

func (r *TurnRecorder) clear() {
	r.userID = ""
	r.userText.Reset()
	r.assistantID = ""
	r.assistantText.Reset()
	r.audioChunks = nil
	r.caption("")
}

func (r *TurnRecorder) caption(text string) {
	if r.onCaption != nil {
		r.onCaption(text)
	}
}

func concatChunks(chunks [][]byte) []byte {
	if len(chunks) == 0 {
		return nil
	}
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}
