package monitor

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// CheckType selects the probe mechanism for an endpoint check.
type CheckType string

const (
	CheckICMP CheckType = "icmp"
	CheckTCP  CheckType = "tcp"
)

// ValidCheckType reports whether t is a known check type.
func ValidCheckType(t CheckType) bool {
	return t == CheckICMP || t == CheckTCP
}

// ProbeResult is the outcome of a single endpoint probe.
type ProbeResult struct {
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latencyMs"`
	PacketLoss   float64   `json:"packetLoss"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Checker probes a single target endpoint.
type Checker interface {
	Probe(ctx context.Context, target string) *ProbeResult
}

// Compile-time interface guards.
var (
	_ Checker = (*ICMPChecker)(nil)
	_ Checker = (*TCPChecker)(nil)
)

// ICMPChecker pings targets using ICMP echo requests.
type ICMPChecker struct {
	timeout time.Duration
	count   int
}

// NewICMPChecker creates an ICMP checker with the given per-probe
// timeout and echo count.
func NewICMPChecker(timeout time.Duration, count int) *ICMPChecker {
	if count <= 0 {
		count = 3
	}
	return &ICMPChecker{timeout: timeout, count: count}
}

// Probe pings the target and reports average latency and packet loss.
func (c *ICMPChecker) Probe(ctx context.Context, target string) *ProbeResult {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return &ProbeResult{
			ErrorMessage: fmt.Sprintf("invalid target %q: %v", target, err),
			CheckedAt:    time.Now().UTC(),
		}
	}

	pinger.Count = c.count
	pinger.Timeout = c.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pinger.Run()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return &ProbeResult{
			ErrorMessage: "probe cancelled",
			CheckedAt:    time.Now().UTC(),
		}
	}

	stats := pinger.Statistics()
	res := &ProbeResult{
		PacketLoss: stats.PacketLoss,
		CheckedAt:  time.Now().UTC(),
	}
	if stats.PacketsRecv > 0 {
		res.Success = true
		res.LatencyMs = float64(stats.AvgRtt) / float64(time.Millisecond)
	} else {
		res.ErrorMessage = "no echo reply"
	}
	return res
}

// TCPChecker tests TCP connectivity to host:port targets.
type TCPChecker struct {
	timeout time.Duration
}

// NewTCPChecker creates a TCP checker with the given connection timeout.
func NewTCPChecker(timeout time.Duration) *TCPChecker {
	return &TCPChecker{timeout: timeout}
}

// Probe connects to the target (host:port) and measures connection time.
func (c *TCPChecker) Probe(ctx context.Context, target string) *ProbeResult {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return &ProbeResult{
			ErrorMessage: fmt.Sprintf("invalid target %q: %v", target, err),
			CheckedAt:    time.Now().UTC(),
		}
	}

	start := time.Now()
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	elapsed := time.Since(start)

	if err != nil {
		return &ProbeResult{
			LatencyMs:    float64(elapsed) / float64(time.Millisecond),
			ErrorMessage: err.Error(),
			CheckedAt:    time.Now().UTC(),
		}
	}
	conn.Close()

	return &ProbeResult{
		Success:   true,
		LatencyMs: float64(elapsed) / float64(time.Millisecond),
		CheckedAt: time.Now().UTC(),
	}
}
