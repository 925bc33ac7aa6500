package monitor

import "testing"

type nopSink struct{}

func (nopSink) SendSelfPing() error            { return nil }
func (nopSink) SendIcmpV4TunDevice(int) error  { return nil }
func (nopSink) SendIcmpV4External(int) error   { return nil }
func (nopSink) SendIcmpV6TunDevice(int) error  { return nil }
func (nopSink) SendIcmpV6External(int) error   { return nil }

func TestAggregationNoSelfPingIsEntryGatewayDown(t *testing.T) {
	m := NewMonitor(nopSink{}, nil)
	m.applyAggregation(false, false, false, false, false)
	if m.Status() != StatusEntryGatewayDown {
		t.Fatalf("got %v, want EntryGatewayDown", m.Status())
	}
}

func TestAggregationSelfPingOnlyIsExitGatewayDown(t *testing.T) {
	m := NewMonitor(nopSink{}, nil)
	m.applyAggregation(true, false, false, false, false)
	if m.Status() != StatusExitGatewayDown {
		t.Fatalf("got %v, want ExitGatewayDown", m.Status())
	}
}

func TestAggregationFullyConnectedIPv4(t *testing.T) {
	m := NewMonitor(nopSink{}, nil)
	m.applyAggregation(true, true, true, true, true)
	if m.Status() != StatusConnectedIPv4 {
		t.Fatalf("got %v, want ConnectedIpv4", m.Status())
	}
}

func TestAggregationExternalUnreachableIsRoutingExit(t *testing.T) {
	m := NewMonitor(nopSink{}, nil)
	m.applyAggregation(true, true, false, true, false)
	if m.Status() != StatusRoutingExit {
		t.Fatalf("got %v, want RoutingExit", m.Status())
	}
}
