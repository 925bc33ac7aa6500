package monitor

import (
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// BeaconIdentifier is the fixed ICMP echo identifier the monitor's self
// and external probes use, so replies can be attributed unambiguously
// (§4.6: "a fixed beacon identifier (e.g. 8475)").
const BeaconIdentifier = 8475

// BuildEchoRequestV4 builds a full IPv4 packet (header + ICMP echo
// request body) ready to be handed to C5 for bundling.
func BuildEchoRequestV4(src, dst net.IP, seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{ID: BeaconIdentifier, Seq: seq, Data: []byte("nym-vpn-monitor")},
	}
	icmpBytes, err := msg.Marshal(nil)
	if err != nil {
		return nil, err
	}
	return wrapIPv4(icmpBytes, src, dst, 1 /* protoICMP */), nil
}

// BuildEchoRequestV6 builds a full IPv6 packet (header + ICMPv6 echo
// request body).
func BuildEchoRequestV6(src, dst net.IP, seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv6.ICMPTypeEchoRequest, Code: 0,
		Body: &icmp.Echo{ID: BeaconIdentifier, Seq: seq, Data: []byte("nym-vpn-monitor")},
	}
	// Pseudo-header checksum requires the real ConnMarshal path normally
	// provided by a raw ICMPv6 socket; since this packet never touches a
	// raw socket (it travels bundled through the mixnet/IPR, §4.6), we
	// marshal without a pseudo-header checksum and let the exit's IP
	// stack recompute it on arrival, matching wrap_icmp_in_ipv6's shape.
	icmpBytes, err := msg.Marshal(nil)
	if err != nil {
		return nil, err
	}
	return wrapIPv6(icmpBytes, src, dst, 58 /* protoICMPv6 */), nil
}

// ParseEchoReply reports whether b is an ICMP(v6) echo reply carrying our
// BeaconIdentifier, and if so its sequence number.
func ParseEchoReply(b []byte, v6 bool) (seq int, ok bool) {
	proto := 1
	if v6 {
		proto = 58
	}
	msg, err := icmp.ParseMessage(proto, b)
	if err != nil {
		return 0, false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo.ID != BeaconIdentifier {
		return 0, false
	}
	if v6 && msg.Type != ipv6.ICMPTypeEchoReply {
		return 0, false
	}
	if !v6 && msg.Type != ipv4.ICMPTypeEchoReply {
		return 0, false
	}
	return echo.Seq, true
}

func wrapIPv4(payload []byte, src, dst net.IP, proto int) []byte {
	h := ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      64,
		Protocol: proto,
		Src:      src.To4(),
		Dst:      dst.To4(),
	}
	hdrBytes, err := h.Marshal()
	if err != nil {
		return payload
	}
	return append(hdrBytes, payload...)
}

func wrapIPv6(payload []byte, src, dst net.IP, nextHeader int) []byte {
	hdr := make([]byte, ipv6.HeaderLen)
	hdr[0] = 0x60
	hdr[4] = byte(len(payload) >> 8)
	hdr[5] = byte(len(payload))
	hdr[6] = byte(nextHeader)
	hdr[7] = 64 // hop limit
	copy(hdr[8:24], src.To16())
	copy(hdr[24:40], dst.To16())
	return append(hdr, payload...)
}
