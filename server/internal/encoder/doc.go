// Package encoder turns raw planar float32 PCM chunks into encoded audio.
//
// Input format: one byte buffer per chunk holding every channel's samples
// back to back (channel 0 first), each sample a little-endian IEEE-754
// float32 in [-1, 1]. SplitChannels validates and splits such a buffer.
//
// Built-in content types, both 16-bit PCM:
//
//	audio/wav   streaming RIFF/WAVE, header with unknown length on the first chunk
//	audio/L16   raw big-endian samples (RFC 2586)
//
// Other codecs (MP3 in production) are plugged in with Factory.Register.
package encoder
