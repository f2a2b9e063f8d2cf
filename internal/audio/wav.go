package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmFormat is the WAVE_FORMAT_PCM audio format tag.
const pcmFormat = 1

// DecodeWAV reads a complete WAV container into a Segment.
func DecodeWAV(r io.ReadSeeker) (*Segment, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("audio: not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read pcm: %w", err)
	}
	f := Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if buf.Format != nil {
		f.SampleRate = buf.Format.SampleRate
		f.Channels = buf.Format.NumChannels
	}
	return &Segment{Format: f, Samples: buf.Data}, nil
}

// DecodeWAVBytes decodes an in-memory WAV container. Containers written to a
// pipe carry placeholder chunk sizes; those are repaired before decoding.
func DecodeWAVBytes(b []byte) (*Segment, error) {
	return DecodeWAV(bytes.NewReader(repairStreamedHeader(b)))
}

// EncodeWAV writes the segment as a PCM WAV container.
func (s *Segment) EncodeWAV(w io.WriteSeeker) error {
	bitDepth := s.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	enc := wav.NewEncoder(w, s.SampleRate, bitDepth, s.channels(), pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: s.channels(), SampleRate: s.SampleRate},
		Data:           s.Samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	return enc.Close()
}

// WAVBytes encodes the segment into an in-memory WAV container.
func (s *Segment) WAVBytes() ([]byte, error) {
	var sb seekBuffer
	if err := s.EncodeWAV(&sb); err != nil {
		return nil, err
	}
	return sb.Bytes(), nil
}

// ReadFile decodes a WAV file from disk.
func ReadFile(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seg, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return seg, nil
}

// WriteFile encodes the segment to path, creating parent directories.
func (s *Segment) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.EncodeWAV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FromPCM16 wraps raw little-endian signed 16-bit samples.
func FromPCM16(raw []byte, sampleRate, channels int) *Segment {
	n := len(raw) / 2
	samples := make([]int, n)
	for i := 0; i < n; i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return &Segment{
		Format:  Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16},
		Samples: samples,
	}
}

// repairStreamedHeader rewrites the RIFF and data chunk sizes of a WAV
// container so they agree with the number of bytes actually present.
func repairStreamedHeader(b []byte) []byte {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return b
	}
	out := make([]byte, len(b))
	copy(out, b)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))

	off := 12
	for off+8 <= len(out) {
		id := string(out[off : off+4])
		size := int(binary.LittleEndian.Uint32(out[off+4 : off+8]))
		remaining := len(out) - off - 8
		if id == "data" {
			if size == 0 || size > remaining {
				binary.LittleEndian.PutUint32(out[off+4:off+8], uint32(remaining))
			}
			break
		}
		if size < 0 || size > remaining {
			break
		}
		off += 8 + size + size%2
	}
	return out
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (sb *seekBuffer) Write(p []byte) (int, error) {
	if need := sb.pos + len(p); need > len(sb.buf) {
		sb.buf = append(sb.buf, make([]byte, need-len(sb.buf))...)
	}
	n := copy(sb.buf[sb.pos:], p)
	sb.pos += n
	return n, nil
}

func (sb *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(sb.pos) + offset
	case io.SeekEnd:
		abs = int64(len(sb.buf)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	sb.pos = int(abs)
	return abs, nil
}

func (sb *seekBuffer) Bytes() []byte { return sb.buf }
