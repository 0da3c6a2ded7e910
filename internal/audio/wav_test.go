package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWAVReadsExportedSegment(t *testing.T) {
	t.Parallel()

	stereo24 := Format{SampleRate: 16000, Channels: 2, SampleWidth: 3}
	data := []byte{
		0x01, 0x02, 0x03, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x80, 0xff, 0xff, 0x7f,
	}

	tests := []struct {
		name  string
		frame Frame
	}{
		{name: "mono 16-bit", frame: Frame{Format: mono16k, Data: pcm16(sine(1600, 0.3))}},
		{name: "stereo 24-bit", frame: Frame{Format: stereo24, Data: data}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seg Segment
			require.NoError(t, seg.Append(tc.frame))

			path := filepath.Join(t.TempDir(), "in.wav")
			require.NoError(t, WAVExporter{}.Export(context.Background(), &seg, path))

			loaded, err := LoadWAV(path)
			require.NoError(t, err)
			require.Equal(t, seg.Format(), loaded.Format())
			require.Equal(t, seg.Bytes(), loaded.Bytes())
		})
	}
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff"), 0o644))

	_, err := LoadWAV(path)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestSegmentSplit(t *testing.T) {
	t.Parallel()

	var seg Segment
	require.NoError(t, seg.Append(Frame{Format: mono16k, Data: make([]byte, 32000*2+3200)})) // 2.1s

	frames := seg.Split(500 * time.Millisecond)
	require.Len(t, frames, 5)

	var total time.Duration
	for _, fr := range frames[:4] {
		require.Equal(t, 500*time.Millisecond, fr.Duration())
		total += fr.Duration()
	}
	require.Equal(t, 100*time.Millisecond, frames[4].Duration())
	require.Equal(t, seg.Duration(), total+frames[4].Duration())

	var empty Segment
	require.Nil(t, empty.Split(time.Second))
}
