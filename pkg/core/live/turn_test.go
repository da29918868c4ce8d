package live

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/focusflow/focusflow-go/pkg/chat"
)

func newTestRecorder(onCaption func(string)) (*TurnRecorder, *chat.Log) {
	log := chat.NewLog()
	r := NewTurnRecorder(log, onCaption)

	// Deterministic, strictly increasing IDs.
	var tick int64
	r.now = func() time.Time {
		tick++
		return time.Unix(0, tick)
	}
	return r, log
}

func TestTurnRecorder_UserDeltasReplaceNotAppend(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: "Hel"})
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: "lo "})
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: "there"})

	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (deltas update in place)", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser {
		t.Errorf("role = %v, want user", msgs[0].Role)
	}
	if msgs[0].Content != "Hello there" {
		t.Errorf("content = %q, want %q", msgs[0].Content, "Hello there")
	}
}

func TestTurnRecorder_FullLiveTurn(t *testing.T) {
	r, log := newTestRecorder(nil)

	audioData := bytes.Repeat([]byte{0x01}, 30)

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: "Hi"})
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "Hi"})
	r.Handle(AudioChunkEvent{Data: audioData[:10]})
	r.Handle(AudioChunkEvent{Data: audioData[10:20]})
	r.Handle(AudioChunkEvent{Data: audioData[20:]})
	r.Handle(TurnCompleteEvent{})

	msgs := log.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(msgs))
	}
	user, assistant := msgs[0], msgs[1]
	if user.Role != chat.RoleUser || user.Content != "Hi" {
		t.Errorf("user = %+v", user)
	}
	if assistant.Role != chat.RoleAssistant || assistant.Content != "Hi" {
		t.Errorf("assistant = %+v", assistant)
	}
	if len(assistant.Audio) != 30 {
		t.Errorf("assistant audio = %d bytes, want 30 (chunks concatenated)", len(assistant.Audio))
	}
	if !bytes.Equal(assistant.Audio, audioData) {
		t.Error("assistant audio chunks concatenated out of order")
	}
}

func TestTurnRecorder_FinalizeWithoutTextUsesPlaceholder(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(AudioChunkEvent{Data: []byte{1, 2, 3, 4}})
	r.Handle(TurnCompleteEvent{})

	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != PlaceholderReply {
		t.Errorf("content = %q, want %q", msgs[0].Content, PlaceholderReply)
	}
	if len(msgs[0].Audio) != 4 {
		t.Errorf("audio = %d bytes, want 4", len(msgs[0].Audio))
	}
}

func TestTurnRecorder_FinalizeIsIdempotent(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(AudioChunkEvent{Data: []byte{1, 2}})
	r.Handle(TurnCompleteEvent{})
	r.Handle(TurnCompleteEvent{})
	r.Handle(TurnCompleteEvent{})

	if got := log.Len(); got != 1 {
		t.Errorf("got %d messages after repeated turn-complete, want exactly 1", got)
	}
}

func TestTurnRecorder_EmptyTurnCompleteYieldsPlaceholder(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(TurnCompleteEvent{})
	r.Handle(TurnCompleteEvent{})

	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages for an empty turn, want exactly 1", len(msgs))
	}
	if msgs[0].Role != chat.RoleAssistant || msgs[0].Content != PlaceholderReply {
		t.Errorf("message = %+v, want placeholder assistant reply", msgs[0])
	}
	if msgs[0].Audio != nil {
		t.Errorf("audio = %v, want none", msgs[0].Audio)
	}
}

func TestTurnRecorder_InterruptionDropsAudioKeepsText(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "I was say"})
	r.Handle(AudioChunkEvent{Data: []byte{1, 2, 3, 4}})
	r.Handle(InterruptedEvent{})
	r.Handle(TurnCompleteEvent{})

	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "I was say" {
		t.Errorf("content = %q, transcript must survive interruption", msgs[0].Content)
	}
	if msgs[0].Audio != nil {
		t.Errorf("audio = %v, interrupted audio must be dropped", msgs[0].Audio)
	}
}

func TestTurnRecorder_ConsecutiveTurnsGetSeparateMessages(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "First"})
	r.Handle(TurnCompleteEvent{})
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "Second"})
	r.Handle(TurnCompleteEvent{})

	msgs := log.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "First" || msgs[1].Content != "Second" {
		t.Errorf("messages = %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].ID == msgs[1].ID {
		t.Error("consecutive turns must not share an ID")
	}
}

func TestTurnRecorder_CaptionMirrorsAssistantText(t *testing.T) {
	var captions []string
	r, _ := newTestRecorder(func(text string) { captions = append(captions, text) })

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "Hel"})
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "lo"})
	r.Handle(TurnCompleteEvent{})

	want := []string{"Hel", "Hello", ""}
	if len(captions) != len(want) {
		t.Fatalf("captions = %v, want %v", captions, want)
	}
	for i := range want {
		if captions[i] != want[i] {
			t.Errorf("caption %d = %q, want %q", i, captions[i], want[i])
		}
	}
}

// slowSink mimics an archive-backed sink whose writes take a while,
// widening the window in which a teardown can overlap an event.
type slowSink struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (s *slowSink) Append(msg chat.Message) {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *slowSink) UpdateByID(id, content string, audio []byte) {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Content = content
			if audio != nil {
				s.msgs[i].Audio = audio
			}
		}
	}
}

func (s *slowSink) last() (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return chat.Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

func TestTurnRecorder_ResetDuringSlowSinkWrite(t *testing.T) {
	sink := &slowSink{}
	r := NewTurnRecorder(sink, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "x"})
			r.Handle(AudioChunkEvent{Data: []byte{1, 2}})
		}
	}()
	for i := 0; i < 25; i++ {
		r.Reset()
	}
	<-done

	// The recorder must come out of the churn consistent: a clean
	// turn after the final reset records normally.
	r.Reset()
	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "after"})
	r.Handle(TurnCompleteEvent{})

	msg, ok := sink.last()
	if !ok {
		t.Fatal("no messages recorded")
	}
	if msg.Content != "after" {
		t.Errorf("content = %q, want %q", msg.Content, "after")
	}
}

func TestTurnRecorder_ResetDropsOpenTurns(t *testing.T) {
	r, log := newTestRecorder(nil)

	r.Handle(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: "partial"})
	r.Handle(AudioChunkEvent{Data: []byte{1, 2}})
	r.Reset()
	r.Handle(TurnCompleteEvent{})

	// The streamed partial message stays in the log but finalize
	// after reset must not touch or duplicate it.
	msgs := log.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "partial" || msgs[0].Audio != nil {
		t.Errorf("message = %+v, reset must not finalize", msgs[0])
	}
}
