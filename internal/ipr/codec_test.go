package ipr

import (
	"bytes"
	"testing"
)

func TestBundleEncodeDecodeRoundTrip(t *testing.T) {
	packets := [][]byte{
		[]byte("first packet"),
		[]byte("second, a bit longer packet"),
		[]byte("3"),
	}

	var enc BundleEncoder
	var bundle []byte
	for _, p := range packets {
		if flushed := enc.Add(p); flushed != nil {
			bundle = append(bundle, flushed...)
		}
	}
	bundle = append(bundle, enc.Flush()...)

	got, err := DecodeAll(bundle)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(got) != len(packets) {
		t.Fatalf("got %d packets, want %d", len(got), len(packets))
	}
	for i, p := range packets {
		if !bytes.Equal(got[i], p) {
			t.Fatalf("packet %d: got %q want %q", i, got[i], p)
		}
	}
}

func TestBundleDecoderHandlesPartialChunks(t *testing.T) {
	var enc BundleEncoder
	enc.Add([]byte("hello"))
	enc.Add([]byte("world"))
	bundle := enc.Flush()

	var dec BundleDecoder
	mid := len(bundle) / 2
	first, err := dec.Decode(bundle[:mid])
	if err != nil {
		t.Fatalf("Decode first half: %v", err)
	}
	second, err := dec.Decode(bundle[mid:])
	if err != nil {
		t.Fatalf("Decode second half: %v", err)
	}
	all := append(first, second...)
	if len(all) != 2 {
		t.Fatalf("got %d packets across split chunks, want 2", len(all))
	}
}

func TestEncoderFlushesOnBufferFull(t *testing.T) {
	var enc BundleEncoder
	big := make([]byte, MaxBundleBytes-1)
	if flushed := enc.Add(big); flushed != nil {
		t.Fatalf("first Add should not flush yet")
	}
	flushed := enc.Add([]byte("overflow"))
	if flushed == nil {
		t.Fatalf("second Add should have forced a flush")
	}
}
