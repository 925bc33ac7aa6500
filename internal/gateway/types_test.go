package gateway

import "testing"

func TestRecipientRoundTrip(t *testing.T) {
	var r Recipient
	for i := range r.UserPubKey {
		r.UserPubKey[i] = byte(i)
	}
	for i := range r.UserEncryptionKey {
		r.UserEncryptionKey[i] = byte(i + 1)
	}
	for i := range r.GatewayIdentity {
		r.GatewayIdentity[i] = byte(i + 2)
	}

	s := r.String()
	parsed, err := ParseRecipient(s)
	if err != nil {
		t.Fatalf("ParseRecipient(%q): %v", s, err)
	}
	if parsed.String() != s {
		t.Fatalf("round trip mismatch: got %q want %q", parsed.String(), s)
	}
}

func TestParseRecipientMalformed(t *testing.T) {
	cases := []string{
		"",
		"no-at-sign",
		"nodothere@gw",
		"a.b@",
	}
	for _, c := range cases {
		if _, err := ParseRecipient(c); err == nil {
			t.Errorf("ParseRecipient(%q) expected error, got nil", c)
		}
	}
}

func TestGatewayListInvariants(t *testing.T) {
	mkGateway := func(id byte, code string) Gateway {
		g := Gateway{Capabilities: map[Capability]struct{}{}}
		g.Identity[0] = id
		if code != "" {
			g.Location = &Location{TwoLetterISOCountryCode: code}
		}
		return g
	}

	list := NewGatewayList([]Gateway{
		mkGateway(1, "US"),
		mkGateway(2, "DE"),
		mkGateway(3, "DE"),
	})

	g, ok := list.RandomGatewayLocatedAt("US", func(int) int { return 0 })
	if !ok || g.ISOCode() != "US" {
		t.Fatalf("expected US gateway, got %+v ok=%v", g, ok)
	}

	if _, ok := list.RandomGatewayLocatedAt("FR", func(int) int { return 0 }); ok {
		t.Fatalf("expected no match for FR")
	}

	removed := list.RemoveGateway(g.IdentityBase58())
	if removed.Len() != list.Len()-1 {
		t.Fatalf("RemoveGateway: got len %d, want %d", removed.Len(), list.Len()-1)
	}
	for _, rem := range removed.All() {
		if rem.IdentityBase58() == g.IdentityBase58() {
			t.Fatalf("removed gateway still present")
		}
	}
}
