// Package audio provides the PCM codec used on both sides of a live
// voice session: base64 framing for the wire, int16 conversion for
// captured microphone samples, and normalized float buffers for playback.
package audio

import (
	"encoding/base64"
	"fmt"

	"github.com/focusflow/focusflow-go/pkg/core"
)

// EncodeFrame encodes raw 16-bit little-endian PCM for transport.
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame decodes a transport payload back into raw PCM bytes.
// Malformed input returns a decode error rather than truncated audio.
func DecodeFrame(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, core.NewDecodeError("decode audio payload", err)
	}
	return data, nil
}

// PCM16FromFloat32 converts normalized samples in [-1, 1] to 16-bit
// little-endian PCM. Samples are scaled by 32768 and clamped to the
// int16 range so out-of-range input saturates instead of wrapping.
func PCM16FromFloat32(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		scaled := int32(sample * 32768)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		v := int16(scaled)
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	return pcm
}

// Buffer holds decoded audio as normalized per-channel float data,
// ready for scheduling on an output device.
type Buffer struct {
	SampleRate int
	Channels   int

	// channelData[c][i] is sample i of channel c, in [-1.0, 1.0).
	channelData [][]float32
	frames      int
}

// BuildBuffer de-interleaves 16-bit little-endian PCM into per-channel
// float data normalized by 1/32768. The byte length must be a whole
// number of frames for the given channel count.
func BuildBuffer(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, core.NewMalformedAudioError(fmt.Sprintf("invalid sample rate %d", sampleRate))
	}
	if channels <= 0 {
		return nil, core.NewMalformedAudioError(fmt.Sprintf("invalid channel count %d", channels))
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return nil, core.NewMalformedAudioError(fmt.Sprintf("pcm length %d is not a multiple of frame size %d", len(data), frameBytes))
	}

	frames := len(data) / frameBytes
	channelData := make([][]float32, channels)
	for c := range channelData {
		channelData[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sample := int16(data[off]) | int16(data[off+1])<<8
			channelData[c][i] = float32(sample) / 32768.0
		}
	}

	return &Buffer{
		SampleRate:  sampleRate,
		Channels:    channels,
		channelData: channelData,
		frames:      frames,
	}, nil
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	return b.frames
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.frames) / float64(b.SampleRate)
}

// ChannelData returns the normalized samples for one channel.
func (b *Buffer) ChannelData(channel int) []float32 {
	return b.channelData[channel]
}

// PCM16 re-interleaves the buffer back into 16-bit little-endian PCM.
func (b *Buffer) PCM16() []byte {
	pcm := make([]byte, b.frames*b.Channels*2)
	for i := 0; i < b.frames; i++ {
		for c := 0; c < b.Channels; c++ {
			scaled := int32(b.channelData[c][i] * 32768)
			if scaled > 32767 {
				scaled = 32767
			} else if scaled < -32768 {
				scaled = -32768
			}
			v := int16(scaled)
			off := (i*b.Channels + c) * 2
			pcm[off] = byte(v)
			pcm[off+1] = byte(v >> 8)
		}
	}
	return pcm
}
