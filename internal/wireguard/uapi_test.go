package wireguard

import "testing"

func TestUAPIConfigRoundTrip(t *testing.T) {
	var cfg UAPIConfig
	for i := range cfg.PrivateKey {
		cfg.PrivateKey[i] = byte(i)
	}
	cfg.ListenPort = 51820
	cfg.ReplacePeers = true

	var peer UAPIPeer
	for i := range peer.PublicKey {
		peer.PublicKey[i] = byte(255 - i)
	}
	peer.Endpoint = "gateway.example.net:51820"
	peer.AllowedIPs = []string{"0.0.0.0/0", "::/0"}
	peer.PersistentKeepaliveInterval = 25
	cfg.Peers = []UAPIPeer{peer}

	rendered := BuildUAPIConfig(cfg)
	parsed, err := ParseUAPIConfig(rendered)
	if err != nil {
		t.Fatalf("ParseUAPIConfig: %v", err)
	}

	if parsed.PrivateKey != cfg.PrivateKey {
		t.Fatalf("private key mismatch")
	}
	if parsed.ListenPort != cfg.ListenPort {
		t.Fatalf("listen port mismatch: got %d want %d", parsed.ListenPort, cfg.ListenPort)
	}
	if parsed.ReplacePeers != cfg.ReplacePeers {
		t.Fatalf("replace_peers mismatch")
	}
	if len(parsed.Peers) != 1 {
		t.Fatalf("got %d peers, want 1", len(parsed.Peers))
	}
	gotPeer := parsed.Peers[0]
	if gotPeer.PublicKey != peer.PublicKey {
		t.Fatalf("peer public key mismatch")
	}
	if gotPeer.Endpoint != peer.Endpoint {
		t.Fatalf("peer endpoint mismatch: got %q want %q", gotPeer.Endpoint, peer.Endpoint)
	}
	if len(gotPeer.AllowedIPs) != 2 || gotPeer.AllowedIPs[0] != "0.0.0.0/0" || gotPeer.AllowedIPs[1] != "::/0" {
		t.Fatalf("allowed ips mismatch: got %v", gotPeer.AllowedIPs)
	}
	if gotPeer.PersistentKeepaliveInterval != peer.PersistentKeepaliveInterval {
		t.Fatalf("keepalive mismatch")
	}
}

func TestUAPIConfigMultiplePeers(t *testing.T) {
	cfg := UAPIConfig{ReplacePeers: true}
	for p := 0; p < 3; p++ {
		var peer UAPIPeer
		peer.PublicKey[0] = byte(p)
		peer.AllowedIPs = []string{"10.0.0.0/8"}
		cfg.Peers = append(cfg.Peers, peer)
	}

	parsed, err := ParseUAPIConfig(BuildUAPIConfig(cfg))
	if err != nil {
		t.Fatalf("ParseUAPIConfig: %v", err)
	}
	if len(parsed.Peers) != 3 {
		t.Fatalf("got %d peers, want 3", len(parsed.Peers))
	}
	for i, peer := range parsed.Peers {
		if peer.PublicKey[0] != byte(i) {
			t.Fatalf("peer %d public key byte 0: got %d want %d", i, peer.PublicKey[0], i)
		}
	}
}

func TestParseUAPIConfigRejectsOrphanedPeerFields(t *testing.T) {
	if _, err := ParseUAPIConfig("endpoint=1.2.3.4:1234\n"); err == nil {
		t.Fatalf("expected error for endpoint before public_key")
	}
	if _, err := ParseUAPIConfig("allowed_ip=0.0.0.0/0\n"); err == nil {
		t.Fatalf("expected error for allowed_ip before public_key")
	}
}
