package live

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dialer opens a live session. Tests substitute a fake; production
// uses Connect.
type Dialer func(ctx context.Context, cfg ConnectConfig) (*Session, error)

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	// APIKey authenticates new sessions.
	APIKey string

	// Dialer opens sessions. Defaults to Connect.
	Dialer Dialer

	// Microphone is the capture device shared by both modes.
	Microphone Microphone

	// OutputFactory opens a playback context for each conversation.
	OutputFactory OutputFactory

	// Sink receives reconstructed conversation turns.
	Sink Sink

	// OnComposer receives dictated text fragments for the message
	// composer.
	OnComposer func(text string)

	// OnCaption mirrors the assistant's running transcription.
	OnCaption func(text string)

	// OnModeChange is notified whenever the controller changes mode.
	OnModeChange func(mode Mode)

	// OnSessionError receives the terminal error of a session that
	// died on its own. The controller has already torn down.
	OnSessionError func(err error)

	// Debug enables session debug events.
	Debug bool
}

// Controller owns the voice session lifecycle. Dictation and live
// conversation are mutually exclusive: starting either tears the other
// down first, and every teardown runs the same ordered sequence
// regardless of what triggered it.
type Controller struct {
	cfg ControllerConfig

	mu        sync.Mutex
	mode      Mode
	session   *Session
	capture   *Capture
	scheduler *Scheduler
	recorder  *TurnRecorder
	releaseOutput func()

	// gen invalidates event loops of torn-down sessions.
	gen atomic.Uint64

	droppedFrames atomic.Int64
}

// NewController creates a controller in ModeIdle.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Dialer == nil {
		cfg.Dialer = Connect
	}
	return &Controller{cfg: cfg}
}

// Mode returns the current controller mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// DroppedFrames reports microphone frames lost to send failures.
func (c *Controller) DroppedFrames() int64 {
	return c.droppedFrames.Load()
}

// ToggleDictation starts push-to-talk dictation, or stops it when
// already dictating. An active conversation is torn down first.
func (c *Controller) ToggleDictation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeDictating {
		c.teardownLocked()
		return nil
	}
	if c.mode == ModeConversing {
		c.teardownLocked()
	}

	session, err := c.cfg.Dialer(ctx, c.dictationConfig())
	if err != nil {
		c.teardownLocked()
		return err
	}
	c.session = session

	capture := NewCapture(c.cfg.Microphone, c.sendFrame(session))
	if err := capture.Start(); err != nil {
		c.teardownLocked()
		return err
	}
	c.capture = capture

	c.setModeLocked(ModeDictating)
	gen := c.gen.Load()
	go c.dictationLoop(session, gen)
	return nil
}

// ToggleConversation starts a live voice conversation, or stops it
// when already conversing. An active dictation is torn down first.
func (c *Controller) ToggleConversation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeConversing {
		c.teardownLocked()
		return nil
	}
	if c.mode == ModeDictating {
		c.teardownLocked()
	}

	output, clock, release, err := c.cfg.OutputFactory()
	if err != nil {
		c.teardownLocked()
		return err
	}
	c.releaseOutput = release
	c.scheduler = NewScheduler(clock, output)
	c.recorder = NewTurnRecorder(c.cfg.Sink, c.cfg.OnCaption)

	session, err := c.cfg.Dialer(ctx, c.conversationConfig())
	if err != nil {
		c.teardownLocked()
		return err
	}
	c.session = session

	capture := NewCapture(c.cfg.Microphone, c.sendFrame(session))
	if err := capture.Start(); err != nil {
		c.teardownLocked()
		return err
	}
	c.capture = capture

	c.setModeLocked(ModeConversing)
	gen := c.gen.Load()
	go c.conversationLoop(session, c.recorder, c.scheduler, gen)
	return nil
}

// NotifyTypedSend tells the controller the user sent a typed message.
// Typed sending stops dictation; a live conversation keeps running.
func (c *Controller) NotifyTypedSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeDictating {
		c.teardownLocked()
	}
}

// Stop tears down whatever session is active.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeIdle {
		c.teardownLocked()
	}
}

func (c *Controller) dictationConfig() ConnectConfig {
	cfg := DictationConfig(c.cfg.APIKey)
	cfg.Debug = c.cfg.Debug
	return cfg
}

func (c *Controller) conversationConfig() ConnectConfig {
	cfg := ConversationConfig(c.cfg.APIKey)
	cfg.Debug = c.cfg.Debug
	return cfg
}

// sendFrame forwards capture frames to the session. Send failures drop
// the frame: the session's own read loop surfaces the terminal error,
// and losing microphone audio on a dying connection is acceptable.
func (c *Controller) sendFrame(session *Session) func(Frame) {
	return func(frame Frame) {
		if err := session.SendAudioFrame(frame); err != nil {
			c.droppedFrames.Add(1)
		}
	}
}

func (c *Controller) dictationLoop(session *Session, gen uint64) {
	var terminal error
	for event := range session.Events() {
		if c.gen.Load() != gen {
			continue
		}
		switch e := event.(type) {
		case TranscriptDeltaEvent:
			if e.Speaker == SpeakerUser && c.cfg.OnComposer != nil {
				c.cfg.OnComposer(e.Text)
			}
		case ClosedEvent:
			terminal = e.Err
		}
	}
	c.finishLoop(session, gen, terminal)
}

func (c *Controller) conversationLoop(session *Session, recorder *TurnRecorder, scheduler *Scheduler, gen uint64) {
	var terminal error
	for event := range session.Events() {
		if c.gen.Load() != gen {
			continue
		}
		switch e := event.(type) {
		case AudioChunkEvent:
			// The same chunk feeds two consumers: immediate playback
			// and the turn's stored audio.
			if err := scheduler.Enqueue(e.Data); err == nil {
				recorder.Handle(e)
			}
		case InterruptedEvent:
			scheduler.Flush()
			recorder.Handle(e)
		case ClosedEvent:
			terminal = e.Err
			recorder.Handle(e)
		case DebugEvent:
			// Not part of the transcript.
		default:
			recorder.Handle(e)
		}
	}
	c.finishLoop(session, gen, terminal)
}

// finishLoop runs after a session's event channel closes. If the
// session is still the current one the close was remote-initiated, so
// the controller tears down; otherwise teardown already happened.
func (c *Controller) finishLoop(session *Session, gen uint64, terminal error) {
	c.mu.Lock()
	if c.gen.Load() == gen && c.session == session {
		c.teardownLocked()
	}
	c.mu.Unlock()

	if terminal != nil && c.cfg.OnSessionError != nil {
		c.cfg.OnSessionError(terminal)
	}
}

// teardownLocked is the single shutdown path. Every step runs
// unconditionally in order: close the session, stop the microphone,
// release the output context, stop pending sources and reset the
// playback cursor, then clear the turn accumulators.
func (c *Controller) teardownLocked() {
	c.gen.Add(1)

	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	if c.capture != nil {
		_ = c.capture.Stop()
		c.capture = nil
	}
	if c.releaseOutput != nil {
		c.releaseOutput()
		c.releaseOutput = nil
	}
	if c.scheduler != nil {
		c.scheduler.Flush()
		c.scheduler = nil
	}
	if c.recorder != nil {
		c.recorder.Reset()
		c.recorder = nil
	}
	c.setModeLocked(ModeIdle)
}

func (c *Controller) setModeLocked(mode Mode) {
	if c.mode == mode {
		return
	}
	c.mode = mode
	if c.cfg.OnModeChange != nil {
		c.cfg.OnModeChange(mode)
	}
}
