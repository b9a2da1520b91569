package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the canonical PCM WAV header
const HeaderSize = 44

const formatPCM = 1

// Format describes raw linear PCM sample geometry
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// SpeechFormat is what the speech model returns: 24 kHz, mono, signed 16-bit LE.
// Keep in lockstep with generate.GenerateSpeech.
var SpeechFormat = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// ByteRate is sampleRate × channels × bitsPerSample/8
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// BlockAlign is channels × bitsPerSample/8
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Encode wraps pcm in a 44-byte RIFF/WAVE header. The sample geometry is trusted as given.
func Encode(pcm []byte, f Format) []byte {
	out := make([]byte, HeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], formatPCM)
	le.PutUint16(out[22:24], uint16(f.Channels))
	le.PutUint32(out[24:28], uint32(f.SampleRate))
	le.PutUint32(out[28:32], uint32(f.ByteRate()))
	le.PutUint16(out[32:34], uint16(f.BlockAlign()))
	le.PutUint16(out[34:36], uint16(f.BitsPerSample))

	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))

	copy(out[HeaderSize:], pcm)
	return out
}

// Header is the parsed form of a canonical WAV header
type Header struct {
	ChunkSize  uint32
	FormatTag  uint16
	Format     Format
	ByteRate   uint32
	BlockAlign uint16
	DataLength uint32
}

// ParseHeader reads back a header produced by Encode
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("wav: %d bytes is shorter than the %d-byte header", len(b), HeaderSize)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return h, errors.New("wav: missing RIFF/WAVE tags")
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return h, errors.New("wav: unexpected chunk layout")
	}
	le := binary.LittleEndian
	h.ChunkSize = le.Uint32(b[4:8])
	h.FormatTag = le.Uint16(b[20:22])
	h.Format = Format{
		Channels:      int(le.Uint16(b[22:24])),
		SampleRate:    int(le.Uint32(b[24:28])),
		BitsPerSample: int(le.Uint16(b[34:36])),
	}
	h.ByteRate = le.Uint32(b[28:32])
	h.BlockAlign = le.Uint16(b[32:34])
	h.DataLength = le.Uint32(b[40:44])
	return h, nil
}
