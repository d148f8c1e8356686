package encoder

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func encodeAll(t *testing.T, p Params, ctor Constructor, chunks ...[]byte) [][]byte {
	t.Helper()
	enc, err := ctor(p)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	var out [][]byte
	for _, c := range chunks {
		if err := enc.Encode(c, func(b []byte) { out = append(out, b) }); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	return out
}

func TestWAVHeader(t *testing.T) {
	h := WAVHeader(2, 44100)
	if len(h) != 44 {
		t.Fatalf("len: got %d, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q", h)
	}
	if got := binary.LittleEndian.Uint32(h[4:8]); got != 0xFFFFFFFF {
		t.Errorf("RIFF size: got %#x, want unknown length", got)
	}
	if got := binary.LittleEndian.Uint16(h[22:24]); got != 2 {
		t.Errorf("channels: got %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(h[24:28]); got != 44100 {
		t.Errorf("sample rate: got %d, want 44100", got)
	}
	if got := binary.LittleEndian.Uint32(h[28:32]); got != 44100*2*2 {
		t.Errorf("byte rate: got %d", got)
	}
}

func TestWAV_HeaderOnlyOnFirstChunk(t *testing.T) {
	p := Params{ContentType: ContentTypeWAV, Channels: 2, SampleRate: 8000}
	chunk := JoinChannels([][]float32{{1, 0}, {-1, 0.5}})

	out := encodeAll(t, p, NewWAV, chunk, chunk)
	if len(out) != 2 {
		t.Fatalf("outputs: got %d, want one per input", len(out))
	}
	if len(out[0]) != 44+8 || len(out[1]) != 8 {
		t.Fatalf("sizes: got %d and %d, want 52 and 8", len(out[0]), len(out[1]))
	}
	if !bytes.Equal(out[0][:44], WAVHeader(2, 8000)) {
		t.Error("first output does not start with the WAV header")
	}

	// Interleaved little-endian: L0 R0 L1 R1.
	want := []int16{32767, -32767, 0, 16384}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[1][i*2:])); got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestL16_BigEndianNoHeader(t *testing.T) {
	p := Params{ContentType: ContentTypeL16, Channels: 1, SampleRate: 16000}
	out := encodeAll(t, p, NewL16, JoinChannels([][]float32{{0.5, -0.5}}))
	if len(out) != 1 || len(out[0]) != 4 {
		t.Fatalf("got %v, want one 4-byte chunk", out)
	}
	if got := int16(binary.BigEndian.Uint16(out[0][0:])); got != 16384 {
		t.Errorf("sample 0: got %d, want 16384", got)
	}
	if got := int16(binary.BigEndian.Uint16(out[0][2:])); got != -16384 {
		t.Errorf("sample 1: got %d, want -16384", got)
	}
}

func TestPCM_EmptyChunkEmitsNothing(t *testing.T) {
	p := Params{Channels: 1, SampleRate: 8000}
	if out := encodeAll(t, p, NewL16, nil); len(out) != 0 {
		t.Errorf("got %d outputs, want 0", len(out))
	}
}

func TestPCM_EncodeRejectsInvalid(t *testing.T) {
	enc, _ := NewL16(Params{Channels: 2, SampleRate: 8000})
	if err := enc.Encode(make([]byte, 7), func([]byte) {}); err == nil {
		t.Error("Encode: want error for misaligned chunk")
	}
}
