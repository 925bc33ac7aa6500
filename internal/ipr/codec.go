// Package ipr implements the IP-Packet-Router client (C5): the connect
// handshake, the length-prefixed multi-packet bundler, and inbound
// response dispatch (info/disconnect/self-ping).
package ipr

import (
	"encoding/binary"
	"fmt"
)

// MaxBundleBytes bounds how much buffered packet data accumulates before
// a flush is forced even if FlushInterval hasn't elapsed (§4.5: "flush
// timeout of ≤ 50 ms or buffer full").
const MaxBundleBytes = 1400 // close to a single mixnet Sphinx payload

// lengthPrefixSize is the per-packet uint16 length header.
const lengthPrefixSize = 2

// BundleEncoder accumulates individual IP datagrams into one
// length-prefixed byte stream, flushed either when MaxBundleBytes would
// be exceeded or on an explicit Flush call (driven by the caller's flush
// timer).
type BundleEncoder struct {
	buf []byte
}

// Add appends packet to the pending bundle. It returns the bundle bytes
// and resets internal state if appending packet would exceed
// MaxBundleBytes — the caller must send the returned bundle before
// continuing to Add.
func (e *BundleEncoder) Add(packet []byte) (flushed []byte) {
	need := lengthPrefixSize + len(packet)
	if len(e.buf)+need > MaxBundleBytes && len(e.buf) > 0 {
		flushed = e.Flush()
	}
	e.buf = appendLengthPrefixed(e.buf, packet)
	return flushed
}

// Flush returns the accumulated bundle and resets the encoder.
func (e *BundleEncoder) Flush() []byte {
	if len(e.buf) == 0 {
		return nil
	}
	out := e.buf
	e.buf = nil
	return out
}

func appendLengthPrefixed(dst, packet []byte) []byte {
	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(packet)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, packet...)
	return dst
}

// BundleDecoder splits a bundle's bytes (possibly arriving in pieces)
// back into individual IP datagrams.
type BundleDecoder struct {
	pending []byte
}

// Decode feeds newly-received bytes and returns every complete packet
// decodable so far, retaining any trailing partial packet for the next
// call.
func (d *BundleDecoder) Decode(chunk []byte) ([][]byte, error) {
	d.pending = append(d.pending, chunk...)

	var packets [][]byte
	for {
		if len(d.pending) < lengthPrefixSize {
			break
		}
		n := int(binary.BigEndian.Uint16(d.pending[:lengthPrefixSize]))
		if len(d.pending) < lengthPrefixSize+n {
			break
		}
		packet := make([]byte, n)
		copy(packet, d.pending[lengthPrefixSize:lengthPrefixSize+n])
		packets = append(packets, packet)
		d.pending = d.pending[lengthPrefixSize+n:]
	}
	return packets, nil
}

// DecodeAll decodes a complete, self-contained bundle in one call,
// erroring if trailing bytes don't form a whole packet.
func DecodeAll(bundle []byte) ([][]byte, error) {
	var d BundleDecoder
	packets, err := d.Decode(bundle)
	if err != nil {
		return nil, err
	}
	if len(d.pending) != 0 {
		return nil, fmt.Errorf("bundle has %d trailing undecodable bytes", len(d.pending))
	}
	return packets, nil
}
