package live

import (
	"time"
)

const (
	// DefaultEndpoint is the bidirectional generation websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native-audio dialog model.
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt voice used for spoken replies.
	DefaultVoice = "Zephyr"

	// CaptureMIMEType tags outbound microphone audio.
	CaptureMIMEType = "audio/pcm;rate=16000"

	defaultConnectTimeout = 15 * time.Second
)

const conversationSystemPrompt = "You are Flow, a friendly and encouraging study coach. " +
	"Keep spoken replies short and conversational. Help the student stay focused, " +
	"answer their questions directly, and celebrate their progress."

const dictationSystemPrompt = "You are a silent transcription service. " +
	"Transcribe the user's speech exactly. Do not respond, do not generate audio output."

// ConnectConfig configures a live websocket session.
type ConnectConfig struct {
	// Endpoint is the websocket URL. Defaults to DefaultEndpoint.
	Endpoint string

	// APIKey authenticates the connection.
	APIKey string

	// Model is the generation model. Defaults to DefaultModel.
	Model string

	// SystemInstruction steers the model for this session.
	SystemInstruction string

	// VoiceName selects the prebuilt voice. Empty leaves speech
	// configuration out of setup.
	VoiceName string

	// ResponseModalities requested from the model.
	ResponseModalities []string

	// TranscribeInput enables streaming transcription of user speech.
	TranscribeInput bool

	// TranscribeOutput enables streaming transcription of model speech.
	TranscribeOutput bool

	// ConnectTimeout bounds dialing and the setup handshake when the
	// context carries no deadline. Defaults to 15 seconds.
	ConnectTimeout time.Duration

	// Debug emits DebugEvents on the session event channel.
	Debug bool
}

// DictationConfig returns the session configuration for push-to-talk
// dictation: user speech is transcribed but the model is told to stay
// silent, and model-side transcription is left off.
func DictationConfig(apiKey string) ConnectConfig {
	return ConnectConfig{
		APIKey:             apiKey,
		SystemInstruction:  dictationSystemPrompt,
		ResponseModalities: []string{"AUDIO"},
		TranscribeInput:    true,
	}
}

// ConversationConfig returns the session configuration for a full
// voice conversation: spoken replies in the default voice with both
// sides transcribed.
func ConversationConfig(apiKey string) ConnectConfig {
	return ConnectConfig{
		APIKey:             apiKey,
		SystemInstruction:  conversationSystemPrompt,
		VoiceName:          DefaultVoice,
		ResponseModalities: []string{"AUDIO"},
		TranscribeInput:    true,
		TranscribeOutput:   true,
	}
}

func (c ConnectConfig) withDefaults() ConnectConfig {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return c
}

func (c ConnectConfig) setupPayload() *setupPayload {
	payload := &setupPayload{
		Model: c.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: c.ResponseModalities,
		},
	}
	if c.VoiceName != "" {
		payload.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: c.VoiceName},
			},
		}
	}
	if c.SystemInstruction != "" {
		payload.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: c.SystemInstruction}},
		}
	}
	if c.TranscribeInput {
		payload.InputAudioTranscription = &transcriptionConfig{}
	}
	if c.TranscribeOutput {
		payload.OutputAudioTranscription = &transcriptionConfig{}
	}
	return payload
}

// Mode is the controller's session state.
type Mode int

const (
	// ModeIdle means no voice session is active.
	ModeIdle Mode = iota
	// ModeDictating means a dictation session is feeding the composer.
	ModeDictating
	// ModeConversing means a live conversation session is active.
	ModeConversing
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeDictating:
		return "DICTATING"
	case ModeConversing:
		return "CONVERSING"
	default:
		return "UNKNOWN"
	}
}
