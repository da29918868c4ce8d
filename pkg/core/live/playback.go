package live

import (
	"sync"

	"github.com/focusflow/focusflow-go/pkg/core/audio"
)

// Clock reads the output device clock in seconds. Scheduling positions
// are expressed on this clock.
type Clock interface {
	Now() float64
}

// Source is one scheduled stretch of audio on an output device.
type Source interface {
	// Stop halts playback immediately.
	Stop()

	// OnEnded registers a callback invoked once when the source
	// finishes playing naturally. A source that already finished
	// invokes it immediately. Stopped sources never fire it.
	OnEnded(func())
}

// Output schedules audio buffers for playback.
type Output interface {
	// Play schedules buf to start at the given clock position. A
	// position already in the past starts playback immediately.
	Play(buf *audio.Buffer, when float64) Source
}

// OutputFactory opens a fresh output device context. The release
// function closes it.
type OutputFactory func() (Output, Clock, func(), error)

// Scheduler plays a stream of model audio chunks gaplessly. Chunks are
// queued back to back on a monotonic cursor: each buffer starts where
// the previous one ends, or now if the queue had drained.
type Scheduler struct {
	clock  Clock
	output Output
	format audio.Format

	mu            sync.Mutex
	nextStartTime float64
	sources       map[Source]struct{}
}

// NewScheduler creates a scheduler for 24kHz mono model audio.
func NewScheduler(clock Clock, output Output) *Scheduler {
	return &Scheduler{
		clock:   clock,
		output:  output,
		format:  audio.PlaybackFormat(),
		sources: map[Source]struct{}{},
	}
}

// Enqueue decodes one PCM chunk and schedules it at the cursor. The
// cursor never moves backwards: it is advanced to the current clock
// reading first when playback has drained, then by the length of the
// buffer.
func (s *Scheduler) Enqueue(pcm []byte) error {
	buf, err := audio.BuildBuffer(pcm, s.format.SampleRate, s.format.Channels)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if now := s.clock.Now(); s.nextStartTime < now {
		s.nextStartTime = now
	}
	when := s.nextStartTime
	s.nextStartTime += buf.Duration()

	src := s.output.Play(buf, when)
	s.sources[src] = struct{}{}
	s.mu.Unlock()

	// Fires immediately if the buffer drained before registration.
	src.OnEnded(func() {
		s.mu.Lock()
		delete(s.sources, src)
		s.mu.Unlock()
	})
	return nil
}

// Flush stops every pending source and resets the cursor to zero.
// This is the interruption path: whatever has not been heard yet is
// discarded and the next chunk starts immediately.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	stopped := make([]Source, 0, len(s.sources))
	for src := range s.sources {
		stopped = append(stopped, src)
	}
	s.sources = map[Source]struct{}{}
	s.nextStartTime = 0
	s.mu.Unlock()

	for _, src := range stopped {
		src.Stop()
	}
}

// NextStartTime returns the cursor position.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

// Pending returns how many scheduled sources have not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Replayer plays back the stored audio of finished messages, one at a
// time. Each replay runs on a freshly opened output context that is
// released when playback ends or is toggled off.
type Replayer struct {
	factory  OutputFactory
	onChange func(playingID string)

	mu        sync.Mutex
	playingID string
	current   Source
	release   func()
}

// NewReplayer creates a replayer. onChange, when non-nil, is invoked
// with the currently playing message ID ("" when playback stops).
func NewReplayer(factory OutputFactory, onChange func(playingID string)) *Replayer {
	return &Replayer{factory: factory, onChange: onChange}
}

// Toggle starts playing the message's audio, or stops it when that
// same message is already playing. Starting a different message
// supersedes the current one.
func (r *Replayer) Toggle(messageID string, pcm []byte) error {
	r.mu.Lock()
	toggledOff := r.playingID == messageID
	wasPlaying := r.playingID != ""
	prev, prevRel := r.clearLocked()
	r.mu.Unlock()

	stopSource(prev, prevRel)
	if toggledOff {
		if wasPlaying {
			r.notify("")
		}
		return nil
	}

	format := audio.PlaybackFormat()
	buf, err := audio.BuildBuffer(pcm, format.SampleRate, format.Channels)
	if err != nil {
		if wasPlaying {
			r.notify("")
		}
		return err
	}

	output, clock, release, err := r.factory()
	if err != nil {
		if wasPlaying {
			r.notify("")
		}
		return err
	}

	src := output.Play(buf, clock.Now())

	r.mu.Lock()
	r.playingID = messageID
	r.current = src
	r.release = release
	r.mu.Unlock()

	src.OnEnded(func() {
		r.mu.Lock()
		// A different replay may have superseded this one while its
		// completion was in flight; only the still-current source may
		// clear the playing state.
		if r.current != src {
			r.mu.Unlock()
			return
		}
		r.playingID = ""
		r.current = nil
		rel := r.release
		r.release = nil
		r.mu.Unlock()

		if rel != nil {
			rel()
		}
		r.notify("")
	})

	r.notify(messageID)
	return nil
}

// Stop halts any active replay.
func (r *Replayer) Stop() {
	r.mu.Lock()
	wasPlaying := r.playingID != ""
	src, rel := r.clearLocked()
	r.mu.Unlock()

	stopSource(src, rel)
	if wasPlaying {
		r.notify("")
	}
}

// PlayingID returns the ID of the message being replayed, or "".
func (r *Replayer) PlayingID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playingID
}

// clearLocked clears replay state and returns the old source and
// release function for the caller to stop outside the lock. State is
// cleared before Stop runs so a synchronous OnEnded callback sees a
// stale source and backs off.
func (r *Replayer) clearLocked() (Source, func()) {
	src := r.current
	rel := r.release
	r.current = nil
	r.release = nil
	r.playingID = ""
	return src, rel
}

func stopSource(src Source, rel func()) {
	if src != nil {
		src.Stop()
	}
	if rel != nil {
		rel()
	}
}

func (r *Replayer) notify(id string) {
	if r.onChange != nil {
		r.onChange(id)
	}
}
