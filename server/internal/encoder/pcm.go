package encoder

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/sc2cc/sc2cc/server/internal/stream"
)

const (
	ContentTypeWAV = "audio/wav"
	ContentTypeL16 = "audio/L16"
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// unknownLength marks RIFF and data sizes of a stream still being written.
const unknownLength = 0xFFFFFFFF

// WAVHeader returns a streaming 16-bit PCM WAV header.
func WAVHeader(channels, sampleRate int) []byte {
	const bits = 16
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     unknownLength,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bits / 8),
		BlockAlign:    uint16(channels * bits / 8),
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: unknownLength,
	}
	var buf bytes.Buffer
	buf.Grow(44)
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// pcm16 encodes validated float chunks to interleaved signed 16-bit samples.
// Encode is only ever called from a single queue goroutine.
type pcm16 struct {
	channels   int
	sampleRate int
	order      binary.ByteOrder
	wav        bool
	started    bool
}

// NewWAV returns an encoder producing a streaming WAV file.
func NewWAV(p Params) (stream.Encoder, error) {
	return &pcm16{channels: p.Channels, sampleRate: p.SampleRate, order: binary.LittleEndian, wav: true}, nil
}

// NewL16 returns an encoder producing raw big-endian 16-bit PCM.
func NewL16(p Params) (stream.Encoder, error) {
	return &pcm16{channels: p.Channels, sampleRate: p.SampleRate, order: binary.BigEndian}, nil
}

func (e *pcm16) Validate(chunk []byte) error {
	_, err := SplitChannels(chunk, e.channels)
	return err
}

func (e *pcm16) Encode(chunk []byte, emit func([]byte)) error {
	chans, err := SplitChannels(chunk, e.channels)
	if err != nil {
		return err
	}
	frames := len(chans[0])

	var out []byte
	if e.wav && !e.started {
		out = make([]byte, 0, 44+frames*e.channels*2)
		out = append(out, WAVHeader(e.channels, e.sampleRate)...)
	} else {
		out = make([]byte, 0, frames*e.channels*2)
	}
	e.started = true

	var s [2]byte
	for i := 0; i < frames; i++ {
		for ch := 0; ch < e.channels; ch++ {
			e.order.PutUint16(s[:], uint16(toInt16(chans[ch][i])))
			out = append(out, s[:]...)
		}
	}
	if len(out) > 0 {
		emit(out)
	}
	return nil
}

func toInt16(f float32) int16 {
	return int16(math.Round(float64(f) * math.MaxInt16))
}
