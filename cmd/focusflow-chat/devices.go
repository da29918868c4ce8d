package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/focusflow/focusflow-go/pkg/core"
	"github.com/focusflow/focusflow-go/pkg/core/audio"
	"github.com/focusflow/focusflow-go/pkg/core/live"
)

// malgoMicrophone captures 16kHz mono float samples from the default
// input device.
type malgoMicrophone struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
}

func newMalgoMicrophone() (*malgoMicrophone, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &malgoMicrophone{ctx: ctx}, nil
}

func (m *malgoMicrophone) Start(onBuffer func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return core.NewStateError("microphone already started")
	}

	format := audio.CaptureFormat()
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onBuffer(samplesFromBytes(input))
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return core.NewPermissionDeniedError(fmt.Sprintf("open microphone: %v", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return core.NewPermissionDeniedError(fmt.Sprintf("start microphone: %v", err))
	}
	m.device = device
	return nil
}

func (m *malgoMicrophone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	return err
}

// Close releases the audio backend. The microphone must be stopped.
func (m *malgoMicrophone) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

// samplesFromBytes reinterprets little-endian float32 PCM as samples.
func samplesFromBytes(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return samples
}

// oto allows a single context per process, so every playback engine
// shares it. The engine's clock starts at zero when the engine opens,
// matching a fresh scheduling timeline per conversation.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedPlaybackContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		format := audio.PlaybackFormat()
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			otoErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// newPlaybackEngine opens an output for the live controller and the
// replayer. The release function only detaches the engine; the shared
// oto context stays open for the process lifetime.
func newPlaybackEngine() (live.Output, live.Clock, func(), error) {
	ctx, err := sharedPlaybackContext()
	if err != nil {
		return nil, nil, nil, err
	}
	engine := &otoEngine{ctx: ctx, epoch: time.Now()}
	return engine, engine, func() {}, nil
}

// otoEngine schedules buffers on the speaker against a wall-clock
// timeline in seconds.
type otoEngine struct {
	ctx   *oto.Context
	epoch time.Time
}

func (e *otoEngine) Now() float64 {
	return time.Since(e.epoch).Seconds()
}

func (e *otoEngine) Play(buf *audio.Buffer, when float64) live.Source {
	src := &otoSource{}
	pcm := buf.PCM16()
	duration := time.Duration(buf.Duration() * float64(time.Second))

	delay := time.Duration((when - e.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}

	src.mu.Lock()
	src.timer = time.AfterFunc(delay, func() {
		src.begin(e.ctx, pcm, duration)
	})
	src.mu.Unlock()
	return src
}

// otoSource is one scheduled buffer. Starting is deferred on a timer so
// buffers queued back to back begin at their slot instead of mixing.
type otoSource struct {
	mu       sync.Mutex
	stopped  bool
	finished bool
	timer    *time.Timer
	endTimer *time.Timer
	player   *oto.Player
	onEnded  func()
}

func (s *otoSource) begin(ctx *oto.Context, pcm []byte, duration time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	player := ctx.NewPlayer(bytes.NewReader(pcm))
	s.player = player
	s.endTimer = time.AfterFunc(duration, s.finish)
	s.mu.Unlock()

	player.Play()
}

func (s *otoSource) finish() {
	s.mu.Lock()
	if s.stopped || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	player := s.player
	s.player = nil
	onEnded := s.onEnded
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	if onEnded != nil {
		onEnded()
	}
}

func (s *otoSource) Stop() {
	s.mu.Lock()
	if s.stopped || s.finished {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		_ = player.Close()
	}
}

// OnEnded fires f immediately when the source finished before the
// caller could register, so short buffers never strand scheduler
// bookkeeping.
func (s *otoSource) OnEnded(f func()) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		f()
		return
	}
	s.onEnded = f
	s.mu.Unlock()
}
