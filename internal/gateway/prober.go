package gateway

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// Probing constants (§4.2), mirroring latency_measurement.rs.
const (
	ConcurrentGatewaysMeasured = 20
	Measurements               = 3
	ConnTimeout                = 1500 * time.Millisecond
	PingTimeout                = 1000 * time.Millisecond
)

// latencyResult is one gateway's averaged round trip, or a zero sample
// count if it produced no usable pongs.
type latencyResult struct {
	gateway Gateway
	avgRTT  time.Duration
	samples int
}

// Prober measures WebSocket ping/pong latency against candidate gateways
// and performs weighted-random selection by latency (§4.2).
type Prober struct {
	rng *rand.Rand
}

// NewProber constructs a Prober.
func NewProber() *Prober {
	return &Prober{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// ChooseByLatency measures up to ConcurrentGatewaysMeasured candidates
// concurrently and returns one gateway chosen with probability
// proportional to 1/avg_rtt_seconds.
func (p *Prober) ChooseByLatency(candidates []Gateway) (Gateway, error) {
	if len(candidates) == 0 {
		return Gateway{}, fmt.Errorf("no candidate gateways to probe")
	}
	if len(candidates) > ConcurrentGatewaysMeasured {
		candidates = candidates[:ConcurrentGatewaysMeasured]
	}

	var wg sync.WaitGroup
	results := make([]latencyResult, len(candidates))
	for i, g := range candidates {
		wg.Add(1)
		go func(i int, g Gateway) {
			defer wg.Done()
			avg, n := measureLatency(g)
			results[i] = latencyResult{gateway: g, avgRTT: avg, samples: n}
		}(i, g)
	}
	wg.Wait()

	var usable []latencyResult
	for _, r := range results {
		if r.samples > 0 {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return Gateway{}, fmt.Errorf("all probed gateways produced zero samples")
	}

	return chooseWeighted(usable, p.rng), nil
}

// measureLatency opens a WebSocket connection, issues Measurements ping
// frames, and averages the RTTs of matching pongs. Zero samples means the
// gateway is dropped by the caller.
func measureLatency(g Gateway) (time.Duration, int) {
	if g.WireguardEndpoint == "" {
		return 0, 0
	}

	url := "ws://" + g.WireguardEndpoint
	dialer := websocket.Dialer{HandshakeTimeout: ConnTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		core.Log.Debugf("prober", "gateway %s: dial failed: %v", g.IdentityBase58(), err)
		return 0, 0
	}
	defer conn.Close()

	var total time.Duration
	samples := 0
	for i := 0; i < Measurements; i++ {
		start := time.Now()
		if err := conn.SetWriteDeadline(time.Now().Add(PingTimeout)); err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(PingTimeout))
		conn.SetPongHandler(func(string) error { return nil })
		if _, _, err := conn.NextReader(); err != nil {
			continue
		}
		total += time.Since(start)
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return total / time.Duration(samples), samples
}

// chooseWeighted performs weighted-random selection with weight
// 1/avg_rtt_seconds, exactly the choose_weighted policy in
// latency_measurement.rs.
func chooseWeighted(results []latencyResult, rng *rand.Rand) Gateway {
	weights := make([]float64, len(results))
	var total float64
	for i, r := range results {
		secs := r.avgRTT.Seconds()
		if secs <= 0 {
			secs = 0.001
		}
		weights[i] = 1 / secs
		total += weights[i]
	}

	pick := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if pick <= cum {
			return results[i].gateway
		}
	}
	return results[len(results)-1].gateway
}
