package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LevelMetrics summarizes the loudness of a run of samples.
type LevelMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilent reports whether a segment stays under thresholdDBFS. The peak may
// exceed the threshold by 6 dB to tolerate clicks.
func IsSilent(seg *Segment, thresholdDBFS float64) (bool, LevelMetrics, error) {
	metrics, err := MeasurePCM(seg.Bytes(), seg.Format())
	if err != nil {
		return false, LevelMetrics{}, err
	}
	return gate(metrics, thresholdDBFS), metrics, nil
}

// IsSilentWAV applies the same gate to a WAV file on disk.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, LevelMetrics, error) {
	metrics, err := measureWAV(path)
	if err != nil {
		return false, LevelMetrics{}, err
	}
	return gate(metrics, thresholdDBFS), metrics, nil
}

func gate(metrics LevelMetrics, thresholdDBFS float64) bool {
	if metrics.Samples == 0 {
		return true
	}
	if math.IsInf(metrics.RMSdBFS, -1) && math.IsInf(metrics.PeakdBFS, -1) {
		return true
	}
	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= thresholdDBFS+6
}

// MeasurePCM computes RMS and peak levels of raw PCM in format f.
func MeasurePCM(data []byte, f Format) (LevelMetrics, error) {
	if len(data) == 0 {
		return silentMetrics(), nil
	}
	if err := f.Validate(); err != nil {
		return LevelMetrics{}, err
	}

	width := f.SampleWidth
	var acc levelAccumulator
	for i := 0; i+width <= len(data); i += width {
		acc.add(decodePCMSample(data[i:i+width], width))
	}
	return acc.metrics(), nil
}

func decodePCMSample(sample []byte, width int) float64 {
	switch width {
	case 1:
		return (float64(sample[0]) - 128.0) / 128.0
	case 2:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0
	case 3:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0
	default:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0
	}
}

func measureWAV(path string) (LevelMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return LevelMetrics{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return LevelMetrics{}, ErrInvalidWAV
	}
	if dec.WavAudioFormat != 1 {
		return LevelMetrics{}, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return LevelMetrics{}, fmt.Errorf("decode wav: %w", err)
	}

	return measureIntBuffer(buf, int(dec.BitDepth))
}

func measureIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (LevelMetrics, error) {
	if buf == nil || len(buf.Data) == 0 {
		return silentMetrics(), nil
	}

	var scale, offset float64
	switch bitDepth {
	case 8:
		scale, offset = 128.0, 128.0
	case 16:
		scale = 32768.0
	case 24:
		scale = 8388608.0
	case 32:
		scale = 2147483648.0
	default:
		return LevelMetrics{}, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, bitDepth)
	}

	var acc levelAccumulator
	for _, v := range buf.Data {
		acc.add((float64(v) - offset) / scale)
	}
	return acc.metrics(), nil
}

type levelAccumulator struct {
	peak       float64
	sumSquares float64
	samples    int64
}

func (a *levelAccumulator) add(v float64) {
	abs := math.Abs(v)
	if abs > a.peak {
		a.peak = abs
	}
	a.sumSquares += v * v
	a.samples++
}

func (a *levelAccumulator) metrics() LevelMetrics {
	if a.samples == 0 {
		return silentMetrics()
	}
	rms := math.Sqrt(a.sumSquares / float64(a.samples))
	return LevelMetrics{
		RMSdBFS:  amplitudeToDBFS(rms),
		PeakdBFS: amplitudeToDBFS(a.peak),
		Samples:  a.samples,
	}
}

func silentMetrics() LevelMetrics {
	return LevelMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
