package audio

import (
	"fmt"
	"time"
)

// Segment is a growable run of PCM audio in a single format. The zero value
// is an empty segment that adopts the format of the first frame appended.
type Segment struct {
	format Format
	data   []byte
}

// Append concatenates frames onto the segment. All frames must share the
// segment's format.
func (s *Segment) Append(frames ...Frame) error {
	for _, fr := range frames {
		if err := fr.Validate(); err != nil {
			return err
		}
		if len(s.data) == 0 && s.format == (Format{}) {
			s.format = fr.Format
		}
		if fr.Format != s.format {
			return fmt.Errorf("%w: segment %+v, frame %+v", ErrFormatMismatch, s.format, fr.Format)
		}
		s.data = append(s.data, fr.Data...)
	}
	return nil
}

// Reset empties the segment and forgets its format.
func (s *Segment) Reset() {
	s.format = Format{}
	s.data = nil
}

func (s *Segment) Format() Format {
	return s.format
}

// Bytes returns the raw PCM. The slice is shared with the segment.
func (s *Segment) Bytes() []byte {
	return s.data
}

func (s *Segment) Len() int {
	return len(s.data)
}

func (s *Segment) Empty() bool {
	return len(s.data) == 0
}

func (s *Segment) Duration() time.Duration {
	return s.format.DurationOf(len(s.data))
}

// Split cuts the segment into frames of at most d. The last frame may be
// shorter.
func (s *Segment) Split(d time.Duration) []Frame {
	if s.Empty() {
		return nil
	}

	align := s.format.BlockAlign()
	size := int(int64(d)*int64(s.format.SampleRate)/int64(time.Second)) * align
	if size < align {
		size = align
	}

	frames := make([]Frame, 0, len(s.data)/size+1)
	for off := 0; off < len(s.data); off += size {
		end := min(off+size, len(s.data))
		frames = append(frames, Frame{Format: s.format, Data: s.data[off:end]})
	}
	return frames
}
