// Package live implements real-time bidirectional voice sessions for the
// FocusFlow study companion.
//
// # Architecture
//
// The live package provides several core components:
//
//   - Session: websocket client streaming microphone audio up and
//     receiving transcription, audio, and turn signals back
//   - Capture: accumulates microphone samples into fixed-size frames
//     and encodes them for transport
//   - Scheduler: schedules decoded audio buffers gaplessly against a
//     monotonic playback cursor
//   - Replayer: replays the stored audio of a finished message
//   - TurnRecorder: folds streaming events into chat transcript turns
//   - Controller: owns session lifecycle and keeps dictation and live
//     conversation mutually exclusive
//
// # Data Flow
//
//	Mic → Capture → Session → model
//	                   │
//	model events ──────┴→ TurnRecorder → chat transcript
//	                   └→ Scheduler → speaker
//
// # Usage
//
//	ctrl := live.NewController(live.ControllerConfig{
//	    APIKey:        key,
//	    Microphone:    mic,
//	    OutputFactory: openOutput,
//	    Sink:          log,
//	})
//
//	// Push-to-talk dictation into the composer.
//	ctrl.ToggleDictation(ctx)
//
//	// Full duplex voice conversation.
//	ctrl.ToggleConversation(ctx)
package live
