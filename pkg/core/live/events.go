package live

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string.
	EventType() string
}

// Speaker identifies which side of the conversation a transcript
// delta belongs to.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptDeltaEvent carries a streaming transcription fragment.
// Deltas accumulate: the full text of a turn is the concatenation of
// every delta received since the turn opened.
type TranscriptDeltaEvent struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

func (e TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// AudioChunkEvent carries decoded 24kHz mono PCM of model speech.
type AudioChunkEvent struct {
	Data []byte `json:"data"`
}

func (e AudioChunkEvent) EventType() string { return "audio.chunk" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) EventType() string { return "turn.complete" }

// InterruptedEvent signals that the user barged in and any audio not
// yet played must be discarded.
type InterruptedEvent struct{}

func (e InterruptedEvent) EventType() string { return "interrupted" }

// ClosedEvent is the terminal event of a session. Err is nil for a
// clean close and carries the failure otherwise. No further events
// follow; the channel is closed after delivery.
type ClosedEvent struct {
	Err error `json:"-"`
}

func (e ClosedEvent) EventType() string { return "closed" }

// DebugEvent is emitted for debugging information.
type DebugEvent struct {
	Category string `json:"category"` // WIRE, AUDIO, SESSION
	Message  string `json:"message"`
}

func (e DebugEvent) EventType() string { return "debug" }
