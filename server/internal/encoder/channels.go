package encoder

import (
	"encoding/binary"
	"math"

	"github.com/sc2cc/sc2cc/server/internal/stream"
)

// SplitChannels validates a planar chunk and returns its samples per channel.
// All failures are *stream.ValidationError; range failures cite the channel.
func SplitChannels(chunk []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, stream.Invalid("invalid number of channels: %d", channels)
	}
	if len(chunk)%channels != 0 {
		return nil, stream.Invalid("channel data size not a multiple of the number of channels")
	}
	size := len(chunk) / channels
	if size%4 != 0 {
		return nil, stream.Invalid("channel data size not a multiple of 4")
	}

	out := make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		raw := chunk[ch*size : (ch+1)*size]
		samples := make([]float32, size/4)
		for i := range samples {
			f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			// NaN fails both comparisons.
			if !(f >= -1 && f <= 1) {
				return nil, stream.InvalidChannel(ch, "not every element of channel %d is in the range [-1,1]", ch)
			}
			samples[i] = f
		}
		out[ch] = samples
	}
	return out, nil
}

// JoinChannels is the inverse of SplitChannels. All channels must have the
// same length.
func JoinChannels(channels [][]float32) []byte {
	if len(channels) == 0 {
		return nil
	}
	size := len(channels[0]) * 4
	out := make([]byte, size*len(channels))
	for ch, samples := range channels {
		base := ch * size
		for i, f := range samples {
			binary.LittleEndian.PutUint32(out[base+i*4:], math.Float32bits(f))
		}
	}
	return out
}
