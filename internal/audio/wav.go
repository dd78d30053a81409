package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotPCM = errors.New("wav is not 16-bit mono PCM")

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	buf.WriteString("RIFF")
	if err := binary.Write(buf, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	fmtChunk := []any{
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	for _, f := range fmtChunk {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV returns the PCM payload and sample rate of a 16-bit mono WAV.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("decode wav: missing RIFF/WAVE header")
	}

	var (
		sampleRate int
		sawFormat  bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, 0, fmt.Errorf("decode wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels := binary.LittleEndian.Uint16(data[body+2:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || channels != pcmChannels || bits != pcmBitDepth {
				return nil, 0, ErrNotPCM
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, 0, fmt.Errorf("decode wav: data chunk before fmt chunk")
			}
			return data[body:end], sampleRate, nil
		}
		// Chunks are word aligned.
		offset = body + size + size%2
	}
	return nil, 0, fmt.Errorf("decode wav: no data chunk")
}

// ReadPCM loads a .wav file or raw little-endian 16-bit PCM. Raw files use
// fallbackRate.
func ReadPCM(path string, fallbackRate int) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read audio %s: %w", path, err)
	}
	if strings.HasSuffix(strings.ToLower(path), ".wav") || bytes.HasPrefix(data, []byte("RIFF")) {
		return DecodeWAV(data)
	}
	if fallbackRate <= 0 {
		fallbackRate = DefaultSampleRate
	}
	return data, fallbackRate, nil
}
