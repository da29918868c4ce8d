package live

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusflow/focusflow-go/pkg/core"
	"github.com/focusflow/focusflow-go/pkg/core/audio"
)

// Frame is one encoded microphone frame ready for transport.
type Frame struct {
	// Data is base64-encoded 16-bit little-endian PCM.
	Data string

	// MIMEType tags the payload, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// Session is a live websocket session. Events arrive in server order
// on Events(); the channel is closed after the terminal ClosedEvent.
type Session struct {
	conn  *websocket.Conn
	debug bool

	events chan Event
	done   chan struct{}
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error

	skippedChunks atomic.Int64
}

// Connect dials the endpoint, performs the setup handshake, and starts
// the read loop. The returned session is live until Close or a
// terminal read error.
func Connect(ctx context.Context, cfg ConnectConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, core.NewInvalidRequestErrorWithParam("api key must not be empty", "api_key")
	}

	endpoint, err := sessionEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, core.NewConnectionError("websocket dial failed", err)
	}

	if err := conn.WriteJSON(clientSetupFrame{Setup: cfg.setupPayload()}); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("send setup", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("read setup ack", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	frame, err := decodeServerFrame(payload)
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("decode setup ack", err)
	}
	if frame.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("setup was not acknowledged", nil)
	}

	session := &Session{
		conn:   conn,
		debug:  cfg.Debug,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

func sessionEndpoint(cfg ConnectConfig) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", core.NewInvalidRequestErrorWithParam("invalid endpoint URL", "endpoint")
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Events yields session events in arrival order.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudioFrame streams one encoded microphone frame to the model.
// Sends are fire-and-forget; a frame lost to a dying connection is
// not retried.
func (s *Session) SendAudioFrame(frame Frame) error {
	if s == nil {
		return core.NewInvalidRequestError("session must not be nil")
	}
	msg := clientRealtimeInputFrame{
		RealtimeInput: &realtimeInput{
			MediaChunks: []inlineData{{MIMEType: frame.MIMEType, Data: frame.Data}},
		},
	}
	return s.sendJSON(msg)
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return core.NewStateError("session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return core.NewConnectionError("write frame", err)
	}
	return nil
}

// Close closes the websocket session and waits for the read loop to
// drain. Safe to call more than once and from any goroutine.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error, blocking until the session
// has fully shut down.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SkippedChunks reports how many inbound audio chunks were dropped
// because their payload did not decode.
func (s *Session) SkippedChunks() int64 {
	return s.skippedChunks.Load()
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emitTerminal(ClosedEvent{})
				return
			}
			cerr := core.NewConnectionError("read live frame", err)
			s.setErr(cerr)
			s.emitTerminal(ClosedEvent{Err: cerr})
			return
		}

		frame, err := decodeServerFrame(data)
		if err != nil {
			// A frame we cannot parse is skipped; the session stays up.
			s.emitDebug("WIRE", fmt.Sprintf("skipping undecodable frame: %v", err))
			continue
		}
		s.handleFrame(frame)
	}
}

// handleFrame emits the events of one server frame in protocol order:
// transcriptions first, then audio, then interruption and turn
// completion signals.
func (s *Session) handleFrame(frame *serverFrame) {
	if frame.GoAway != nil {
		s.emitDebug("SESSION", "server announced shutdown (goAway)")
		return
	}
	content := frame.ServerContent
	if content == nil {
		return
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.emit(TranscriptDeltaEvent{Speaker: SpeakerUser, Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.emit(TranscriptDeltaEvent{Speaker: SpeakerAssistant, Text: content.OutputTranscription.Text})
	}
	for _, encoded := range content.audioParts() {
		pcm, err := audio.DecodeFrame(encoded)
		if err != nil {
			s.skippedChunks.Add(1)
			s.emitDebug("AUDIO", fmt.Sprintf("skipping undecodable audio chunk: %v", err))
			continue
		}
		s.emit(AudioChunkEvent{Data: pcm})
	}
	if content.Interrupted {
		s.emit(InterruptedEvent{})
	}
	if content.TurnComplete {
		s.emit(TurnCompleteEvent{})
	}
}

// emit delivers an event preserving order. Delivery blocks the read
// loop when the consumer lags; Close unblocks it via the stop channel.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	case <-s.stop:
	}
}

// emitTerminal delivers the final ClosedEvent. The stop channel may
// already be closed at this point, so delivery is bounded by a timer
// instead in case the consumer is gone.
func (s *Session) emitTerminal(event Event) {
	select {
	case s.events <- event:
	case <-time.After(2 * time.Second):
	}
}

func (s *Session) emitDebug(category, message string) {
	if !s.debug {
		return
	}
	s.emit(DebugEvent{Category: category, Message: message})
}
