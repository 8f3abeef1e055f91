// Package wav provides utilities for WAV audio file handling.
package wav

import (
	"github.com/dgnsrekt/storyreel/internal/audio"
)

// WAV format constants.
const (
	// HeaderSize is the size of a standard WAV file header in bytes.
	HeaderSize = 44

	// FormatPCM is the audio format code for uncompressed PCM.
	FormatPCM = 1

	// BitsPerSample is the bit depth Encode writes.
	BitsPerSample = 16

	// MIMEType is the content type of encoded WAV data.
	MIMEType = "audio/wav"
)

// Encode serializes a sample buffer as a 16-bit PCM WAV file. Channels are
// interleaved in input order. Samples are clamped to [-1, 1]; negative
// values scale by 32768 and non-negative values by 32767.
func Encode(buf *audio.SampleBuffer) []byte {
	channels := buf.NumChannels()
	frames := buf.Len()
	pcm := make([]byte, frames*channels*2)

	off := 0
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			PutLE16(pcm[off:off+2], uint16(quantize(buf.At(ch, i))))
			off += 2
		}
	}

	return WrapRawPCM(pcm, buf.SampleRate(), channels, BitsPerSample)
}

func quantize(v float32) int16 {
	s := float64(v)
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// WrapRawPCM adds a WAV header to raw PCM data.
// Parameters:
//   - pcm: raw PCM audio data bytes
//   - sampleRate: samples per second (e.g., 24000, 44100, 48000)
//   - channels: number of audio channels (1=mono, 2=stereo)
//   - bitsPerSample: bit depth per sample (typically 16)
//
// Returns a complete WAV file as a byte slice.
func WrapRawPCM(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, HeaderSize, HeaderSize+dataSize)

	// RIFF header
	copy(header[0:4], "RIFF")
	PutLE32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	// fmt subchunk
	copy(header[12:16], "fmt ")
	PutLE32(header[16:20], 16) // subchunk size
	PutLE16(header[20:22], FormatPCM)
	PutLE16(header[22:24], uint16(channels))
	PutLE32(header[24:28], uint32(sampleRate))
	PutLE32(header[28:32], uint32(byteRate))
	PutLE16(header[32:34], uint16(blockAlign))
	PutLE16(header[34:36], uint16(bitsPerSample))

	// data subchunk
	copy(header[36:40], "data")
	PutLE32(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}

// PutLE16 writes a uint16 value in little-endian format to a byte slice.
func PutLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// PutLE32 writes a uint32 value in little-endian format to a byte slice.
func PutLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// CreateMinimal creates a minimal valid WAV file with the specified number of samples.
// This is useful for testing. The samples are initialized to silence (zero).
func CreateMinimal(numSamples, sampleRate, channels, bitsPerSample int) []byte {
	bytesPerSample := bitsPerSample / 8
	dataSize := numSamples * channels * bytesPerSample

	pcm := make([]byte, dataSize)

	return WrapRawPCM(pcm, sampleRate, channels, bitsPerSample)
}

// CreateMinimalTTS creates a silent WAV file in the speech API's output format.
func CreateMinimalTTS(numSamples int) []byte {
	return CreateMinimal(numSamples, audio.TTSSampleRate, audio.TTSChannels, BitsPerSample)
}
