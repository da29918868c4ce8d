package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusflow/focusflow-go/pkg/chat"
	"github.com/focusflow/focusflow-go/pkg/core/audio"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// composerRecorder collects dictated text fragments.
type composerRecorder struct {
	mu   sync.Mutex
	text string
}

func (c *composerRecorder) append(fragment string) {
	c.mu.Lock()
	c.text += fragment
	c.mu.Unlock()
}

func (c *composerRecorder) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// controllerHarness runs a fake live server and builds controllers
// bound to it.
type controllerHarness struct {
	t         *testing.T
	serverURL string
	close     func()

	mu    sync.Mutex
	conns []*websocket.Conn

	mic      *fakeMicrophone
	outputs  *replayHarness
	log      *chat.Log
	composer *composerRecorder
}

// newControllerHarness starts a server whose handler acks setup, runs
// script against the connection, and then holds it open until the
// client closes.
func newControllerHarness(t *testing.T, script func(conn *websocket.Conn)) *controllerHarness {
	t.Helper()
	h := &controllerHarness{
		t:        t,
		mic:      &fakeMicrophone{},
		outputs:  &replayHarness{},
		log:      chat.NewLog(),
		composer: &composerRecorder{},
	}
	h.serverURL, h.close = newSessionTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()
		if script != nil {
			script(conn)
		}
		// Drain until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	t.Cleanup(h.close)
	return h
}

func (h *controllerHarness) controller() *Controller {
	return NewController(ControllerConfig{
		APIKey: "test-key",
		Dialer: func(ctx context.Context, cfg ConnectConfig) (*Session, error) {
			cfg.Endpoint = h.serverURL
			return Connect(ctx, cfg)
		},
		Microphone:    h.mic,
		OutputFactory: h.outputs.factory,
		Sink:          h.log,
		OnComposer:    h.composer.append,
	})
}

func (h *controllerHarness) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func TestController_ToggleDictationStartsAndStops(t *testing.T) {
	h := newControllerHarness(t, nil)
	c := h.controller()

	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	if c.Mode() != ModeDictating {
		t.Fatalf("mode = %v, want DICTATING", c.Mode())
	}
	if !h.mic.wasStarted() {
		t.Error("dictation should start the microphone")
	}

	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	if c.Mode() != ModeIdle {
		t.Errorf("mode = %v after toggle off, want IDLE", c.Mode())
	}
	if !h.mic.wasStopped() {
		t.Error("teardown should stop the microphone")
	}
}

func TestController_DictationEditsComposerOnly(t *testing.T) {
	h := newControllerHarness(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "note to "},
		}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "self"},
		}})
	})
	c := h.controller()

	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	defer c.Stop()

	waitFor(t, "dictated text", func() bool { return h.composer.String() == "note to self" })

	if h.log.Len() != 0 {
		t.Errorf("chat log has %d messages, dictation must only edit the composer", h.log.Len())
	}
}

func TestController_ModesAreMutuallyExclusive(t *testing.T) {
	h := newControllerHarness(t, nil)
	c := h.controller()

	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	if err := c.ToggleConversation(context.Background()); err != nil {
		t.Fatalf("ToggleConversation error: %v", err)
	}

	if c.Mode() != ModeConversing {
		t.Fatalf("mode = %v, want CONVERSING", c.Mode())
	}
	if h.connCount() != 2 {
		t.Fatalf("dialed %d sessions, want 2", h.connCount())
	}

	// Starting dictation mid-conversation swaps back.
	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	if c.Mode() != ModeDictating {
		t.Errorf("mode = %v, want DICTATING", c.Mode())
	}

	c.Stop()
	if c.Mode() != ModeIdle {
		t.Errorf("mode = %v after Stop, want IDLE", c.Mode())
	}
}

func TestController_ConversationReconstructsTurn(t *testing.T) {
	h := newControllerHarness(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "Hi"},
		}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"outputTranscription": map[string]any{"text": "Hey! Ready to study?"},
		}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"turnComplete": true,
		}})
	})
	c := h.controller()

	if err := c.ToggleConversation(context.Background()); err != nil {
		t.Fatalf("ToggleConversation error: %v", err)
	}
	defer c.Stop()

	waitFor(t, "reconstructed turn", func() bool { return h.log.Len() == 2 })

	msgs := h.log.Messages()
	if msgs[0].Role != chat.RoleUser || msgs[0].Content != "Hi" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != chat.RoleAssistant || msgs[1].Content != "Hey! Ready to study?" {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestController_RemoteCloseTearsDown(t *testing.T) {
	h := newControllerHarness(t, func(conn *websocket.Conn) {
		closeNormally(conn)
	})
	c := h.controller()

	if err := c.ToggleConversation(context.Background()); err != nil {
		t.Fatalf("ToggleConversation error: %v", err)
	}

	waitFor(t, "teardown after remote close", func() bool { return c.Mode() == ModeIdle })

	if !h.mic.wasStopped() {
		t.Error("remote close should stop the microphone")
	}
	h.outputs.mu.Lock()
	released := len(h.outputs.released) == 1 && h.outputs.released[0]
	h.outputs.mu.Unlock()
	if !released {
		t.Error("remote close should release the output context")
	}
}

func TestController_NotifyTypedSendStopsDictationOnly(t *testing.T) {
	h := newControllerHarness(t, nil)
	c := h.controller()

	if err := c.ToggleDictation(context.Background()); err != nil {
		t.Fatalf("ToggleDictation error: %v", err)
	}
	c.NotifyTypedSend()
	if c.Mode() != ModeIdle {
		t.Fatalf("mode = %v after typed send, want IDLE", c.Mode())
	}

	if err := c.ToggleConversation(context.Background()); err != nil {
		t.Fatalf("ToggleConversation error: %v", err)
	}
	c.NotifyTypedSend()
	if c.Mode() != ModeConversing {
		t.Errorf("mode = %v, typed send must not stop a conversation", c.Mode())
	}
	c.Stop()
}

func TestController_InterruptionStopsScheduledAudio(t *testing.T) {
	h := newControllerHarness(t, func(conn *websocket.Conn) {
		chunk := pcmOfDuration(0.5)
		for i := 0; i < 3; i++ {
			_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{{
						"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     audio.EncodeFrame(chunk),
						},
					}},
				},
			}})
		}
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"interrupted": true,
		}})
	})
	c := h.controller()

	if err := c.ToggleConversation(context.Background()); err != nil {
		t.Fatalf("ToggleConversation error: %v", err)
	}
	defer c.Stop()

	waitFor(t, "interruption to stop all sources", func() bool {
		h.outputs.mu.Lock()
		defer h.outputs.mu.Unlock()
		if len(h.outputs.outputs) != 1 {
			return false
		}
		output := h.outputs.outputs[0]
		output.mu.Lock()
		defer output.mu.Unlock()
		if len(output.sources) != 3 {
			return false
		}
		for _, src := range output.sources {
			if !src.isStopped() {
				return false
			}
		}
		return true
	})
}
