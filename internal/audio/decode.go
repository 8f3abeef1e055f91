package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// DecodePCM turns a base64 payload of raw 16-bit little-endian PCM into a
// SampleBuffer. Missing metadata (zero rate or channels) falls back to the
// speech API defaults of 24 kHz mono.
func DecodePCM(payload string, sampleRate, channels int) (*SampleBuffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrDecode, err)
	}
	return DecodePCMBytes(raw, sampleRate, channels)
}

// DecodePCMBytes decodes raw interleaved 16-bit little-endian PCM.
func DecodePCMBytes(raw []byte, sampleRate, channels int) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		sampleRate = TTSSampleRate
	}
	if channels <= 0 {
		channels = TTSChannels
	}

	frameBytes := BytesPerSample * channels
	if len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: payload length %d is not a multiple of %d bytes", ErrDecode, len(raw), frameBytes)
	}

	frames := len(raw) / frameBytes
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := i*frameBytes + ch*BytesPerSample
			s := int16(binary.LittleEndian.Uint16(raw[off : off+BytesPerSample]))
			out[ch][i] = float32(s) / 32768.0
		}
	}

	return NewSampleBuffer(sampleRate, out...)
}

// ContainerDecoder decodes audio that carries its own container headers.
type ContainerDecoder struct {
	conv *Converter
}

// NewContainerDecoder creates a decoder. When conv is non-nil, containers
// beep cannot read are transcoded through ffmpeg first.
func NewContainerDecoder(conv *Converter) *ContainerDecoder {
	return &ContainerDecoder{conv: conv}
}

// DecodeContainer decodes WAV, MP3, Ogg Vorbis or FLAC data without ffmpeg.
func DecodeContainer(ctx context.Context, r io.Reader) (*SampleBuffer, error) {
	return NewContainerDecoder(nil).Decode(ctx, r)
}

// Decode reads the whole stream and decodes it into a SampleBuffer.
func (d *ContainerDecoder) Decode(ctx context.Context, r io.Reader) (*SampleBuffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read failed: %v", ErrDecode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch sniff(data) {
	case "wav":
		s, format, err = wav.Decode(bytes.NewReader(data))
	case "mp3":
		s, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case "vorbis":
		s, format, err = vorbis.Decode(io.NopCloser(bytes.NewReader(data)))
	case "flac":
		s, format, err = flac.Decode(bytes.NewReader(data))
	default:
		if d.conv == nil {
			return nil, fmt.Errorf("%w: unsupported audio container", ErrDecode)
		}
		pcm, err := d.conv.ConvertToPCM(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return DecodePCMBytes(pcm, ConvertSampleRate, ConvertChannels)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer s.Close()

	return drain(s, format)
}

// drain copies a beep stream into a SampleBuffer.
func drain(s beep.Streamer, format beep.Format) (*SampleBuffer, error) {
	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}

	out := make([][]float32, channels)
	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				out[ch] = append(out[ch], float32(chunk[i][ch]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return NewSampleBuffer(int(format.SampleRate), out...)
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "vorbis"
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return "flac"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
