package live

import (
	"sync"

	"github.com/focusflow/focusflow-go/pkg/core"
	"github.com/focusflow/focusflow-go/pkg/core/audio"
)

// CaptureFrameSamples is the number of samples accumulated before a
// frame is emitted. At 16kHz this is 256ms of audio.
const CaptureFrameSamples = 4096

// Microphone delivers normalized float samples in [-1, 1] from an
// input device. Start returns a permission error when the device is
// refused.
type Microphone interface {
	Start(onBuffer func(samples []float32)) error
	Stop() error
}

// Capture accumulates microphone buffers into fixed-size frames,
// converts them to 16-bit PCM, and emits them base64-encoded.
type Capture struct {
	mic       Microphone
	frameSize int
	onFrame   func(Frame)

	mu      sync.Mutex
	pending []float32
	started bool
}

// NewCapture creates a capture pipeline emitting frames of
// CaptureFrameSamples samples to onFrame.
func NewCapture(mic Microphone, onFrame func(Frame)) *Capture {
	return &Capture{
		mic:       mic,
		frameSize: CaptureFrameSamples,
		onFrame:   onFrame,
		pending:   make([]float32, 0, CaptureFrameSamples*2),
	}
}

// Start opens the microphone. A refused device surfaces as a
// permission error.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return core.NewStateError("capture already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.mic.Start(c.handleBuffer); err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		if core.IsType(err, core.ErrPermissionDenied) {
			return err
		}
		return core.NewPermissionDeniedError("microphone unavailable: " + err.Error())
	}
	return nil
}

// Stop releases the microphone. Any trailing partial frame is
// discarded; sub-frame remainders are never flushed.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.pending = c.pending[:0]
	c.mu.Unlock()

	return c.mic.Stop()
}

func (c *Capture) handleBuffer(samples []float32) {
	var frames []Frame

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.frameSize {
		chunk := c.pending[:c.frameSize]
		pcm := audio.PCM16FromFloat32(chunk)
		frames = append(frames, Frame{
			Data:     audio.EncodeFrame(pcm),
			MIMEType: CaptureMIMEType,
		})
		c.pending = append(c.pending[:0], c.pending[c.frameSize:]...)
	}
	c.mu.Unlock()

	// Emit outside the lock so a slow send cannot stall the device
	// callback path through Stop.
	for _, frame := range frames {
		c.onFrame(frame)
	}
}
