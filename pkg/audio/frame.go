// Package audio provides the frame type and level-metering primitives shared
// by the recognition pipeline. Frames carry raw little-endian int16 PCM; the
// LevelMeter turns them into a smoothed [0,1] loudness signal suitable for UI
// feedback and session analytics.
package audio

import (
	"math"
	"time"
)

// Frame represents a single buffer of captured audio flowing into the
// recognition pipeline.
type Frame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for on-device STT).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// RMS computes the root-mean-square energy of little-endian int16 PCM data,
// scaled into [0,1] and clipped. Empty or odd-length input returns 0.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	samples := len(pcm) / 2
	var sum float64
	for i := 0; i < samples*2; i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(samples)) / 32768.0
	if rms > 1 {
		rms = 1
	}
	return rms
}

// DurationOf returns the playback duration of a PCM buffer with the given
// format. Returns 0 for invalid formats.
func DurationOf(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(pcm) / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
