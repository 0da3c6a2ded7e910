package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadWAV decodes an integer PCM WAV file into a segment.
func LoadWAV(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	format := Format{
		SampleRate:  int(dec.SampleRate),
		Channels:    int(dec.NumChans),
		SampleWidth: int(dec.BitDepth) / 8,
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	seg := &Segment{}
	if err := seg.Append(Frame{Format: format, Data: pcmBytes(buf, format.SampleWidth)}); err != nil {
		return nil, err
	}
	return seg, nil
}

func pcmBytes(buf *goaudio.IntBuffer, width int) []byte {
	out := make([]byte, len(buf.Data)*width)
	for i, v := range buf.Data {
		s := out[i*width : (i+1)*width]
		switch width {
		case 1:
			s[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(s, uint16(int16(v)))
		case 3:
			s[0], s[1], s[2] = byte(v), byte(v>>8), byte(v>>16)
		default:
			binary.LittleEndian.PutUint32(s, uint32(int32(v)))
		}
	}
	return out
}
