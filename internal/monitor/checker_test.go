package monitor

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestValidCheckType(t *testing.T) {
	tests := []struct {
		in   CheckType
		want bool
	}{
		{CheckICMP, true},
		{CheckTCP, true},
		{CheckType("udp"), false},
		{CheckType(""), false},
	}
	for _, tt := range tests {
		if got := ValidCheckType(tt.in); got != tt.want {
			t.Errorf("ValidCheckType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTCPChecker_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewTCPChecker(2 * time.Second)
	res := c.Probe(context.Background(), ln.Addr().String())
	if !res.Success {
		t.Fatalf("Probe failed: %s", res.ErrorMessage)
	}
	if res.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, want >= 0", res.LatencyMs)
	}
	if res.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestTCPChecker_Unreachable(t *testing.T) {
	// Grab a free port and close the listener so nothing accepts.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewTCPChecker(500 * time.Millisecond)
	res := c.Probe(context.Background(), addr)
	if res.Success {
		t.Fatal("Probe succeeded against closed port")
	}
	if res.ErrorMessage == "" {
		t.Error("expected error message for failed probe")
	}
}

func TestTCPChecker_InvalidTarget(t *testing.T) {
	c := NewTCPChecker(time.Second)
	res := c.Probe(context.Background(), "no-port-here")
	if res.Success {
		t.Fatal("Probe succeeded for target without port")
	}
	if res.ErrorMessage == "" {
		t.Error("expected error message for invalid target")
	}
}

func TestICMPChecker_InvalidTarget(t *testing.T) {
	c := NewICMPChecker(time.Second, 1)
	res := c.Probe(context.Background(), "this host does not parse")
	if res.Success {
		t.Fatal("Probe succeeded for unparseable target")
	}
	if res.ErrorMessage == "" {
		t.Error("expected error message for invalid target")
	}
}
