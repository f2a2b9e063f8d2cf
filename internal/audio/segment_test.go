package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentLengthAndSlice(t *testing.T) {
	seg := makeTone(toneSpec{DurationMs: 2000, SpeechStartMs: 300, SpeechEndMs: 1600, LevelDBFS: -20})
	assert.Equal(t, 2000, seg.LengthMs())
	assert.Equal(t, 32000, seg.Frames())

	t.Run("inner_slice", func(t *testing.T) {
		s := seg.Slice(300, 1600)
		assert.Equal(t, 1300, s.LengthMs())
		assert.Equal(t, seg.Format, s.Format)
	})

	t.Run("clamped_end", func(t *testing.T) {
		assert.Equal(t, 500, seg.Slice(1500, 9000).LengthMs())
	})

	t.Run("negative_start_clamps_to_zero", func(t *testing.T) {
		assert.Equal(t, 100, seg.Slice(-50, 100).LengthMs())
	})

	t.Run("inverted_span_is_empty", func(t *testing.T) {
		assert.Equal(t, 0, seg.Slice(800, 700).LengthMs())
	})

	t.Run("slice_copies", func(t *testing.T) {
		s := seg.Slice(300, 310)
		s.Samples[0] = 12345
		assert.NotEqual(t, 12345, seg.Samples[300*16])
	})
}

func TestTrimEnd(t *testing.T) {
	seg := Silent(1000, Format{SampleRate: 8000, Channels: 1, BitDepth: 16})
	assert.Equal(t, 975, seg.TrimEnd(25).LengthMs())
	assert.Equal(t, 0, seg.TrimEnd(5000).LengthMs())
}

func TestSilentAndConcat(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 2, BitDepth: 16}
	a := Silent(650, f)
	assert.Equal(t, 650, a.LengthMs())
	assert.Len(t, a.Samples, 650*16*2)

	assert.Equal(t, 0, Silent(-10, f).LengthMs())

	b := Silent(350, f)
	joined, err := a.Append(b)
	require.NoError(t, err)
	assert.Equal(t, 1000, joined.LengthMs())

	_, err = a.Append(Silent(10, Format{SampleRate: 8000, Channels: 2, BitDepth: 16}))
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestDBFSAndGain(t *testing.T) {
	seg := makeTone(toneSpec{DurationMs: 1000, SpeechStartMs: 0, SpeechEndMs: 1000, LevelDBFS: -30})
	assert.InDelta(t, -30.0, seg.DBFS(), 0.05)

	boosted := seg.ApplyGain(-20 - seg.DBFS())
	assert.InDelta(t, -20.0, boosted.DBFS(), 0.05)

	assert.True(t, math.IsInf(Silent(100, seg.Format).DBFS(), -1))
}

func TestApplyGainSaturates(t *testing.T) {
	seg := makeTone(toneSpec{DurationMs: 100, SpeechStartMs: 0, SpeechEndMs: 100, LevelDBFS: -6})
	loud := seg.ApplyGain(30)
	for _, v := range loud.Samples {
		require.LessOrEqual(t, v, 32767)
		require.GreaterOrEqual(t, v, -32768)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	seg := makeTone(toneSpec{DurationMs: 250, SpeechStartMs: 50, SpeechEndMs: 200, LevelDBFS: -12, SampleRate: 22050})
	data, err := seg.WAVBytes()
	require.NoError(t, err)

	got, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	assert.Equal(t, seg.Format, got.Format)
	assert.Equal(t, seg.Samples, got.Samples)
}

func TestDecodeStreamedHeader(t *testing.T) {
	seg := makeTone(toneSpec{DurationMs: 100, SpeechStartMs: 0, SpeechEndMs: 100, LevelDBFS: -12})
	data, err := seg.WAVBytes()
	require.NoError(t, err)

	// A writer that cannot seek leaves placeholder sizes behind.
	streamed := append([]byte(nil), data...)
	for i := 4; i < 8; i++ {
		streamed[i] = 0xff
	}
	idx := indexOf(streamed, "data")
	require.Greater(t, idx, 0)
	for i := idx + 4; i < idx+8; i++ {
		streamed[i] = 0xff
	}

	got, err := DecodeWAVBytes(streamed)
	require.NoError(t, err)
	assert.Equal(t, seg.Samples, got.Samples)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clip.wav")
	seg := makeTone(toneSpec{DurationMs: 50, SpeechStartMs: 0, SpeechEndMs: 50, LevelDBFS: -20})
	require.NoError(t, seg.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seg.LengthMs(), got.LengthMs())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.True(t, os.IsNotExist(err))
}

func TestFromPCM16(t *testing.T) {
	seg := FromPCM16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}, 16000, 1)
	assert.Equal(t, []int{1, -1, -32768}, seg.Samples)
	assert.Equal(t, 16, seg.BitDepth)
}

func indexOf(b []byte, s string) int {
	for i := 0; i+len(s) <= len(b); i++ {
		if string(b[i:i+len(s)]) == s {
			return i
		}
	}
	return -1
}
