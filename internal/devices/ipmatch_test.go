package devices

import "testing"

func TestIPAllowed(t *testing.T) {
	tests := []struct {
		name     string
		sourceIP string
		ranges   string
		want     bool
	}{
		{"cidr match", "10.1.2.3", "10.0.0.0/8", true},
		{"cidr miss", "192.168.1.1", "10.0.0.0/8", false},
		{"exact match", "203.0.113.9", "203.0.113.9", true},
		{"exact miss", "203.0.113.10", "203.0.113.9", false},
		{"second entry matches", "172.16.5.5", "10.0.0.0/8, 172.16.0.0/12", true},
		{"partial last byte inside", "192.168.16.1", "192.168.16.0/20", true},
		{"partial last byte outside", "192.168.32.1", "192.168.16.0/20", false},
		{"malformed entry fails closed", "10.1.2.3", "10.0.0.0/notanumber", false},
		{"garbage entry fails closed", "10.1.2.3", "not-an-ip", false},
		{"malformed source fails closed", "not-an-ip", "10.0.0.0/8", false},
		{"family mismatch fails closed", "10.1.2.3", "2001:db8::/32", false},
		{"ipv6 cidr match", "2001:db8::1", "2001:db8::/32", true},
		{"ipv6 cidr miss", "2001:db9::1", "2001:db8::/32", false},
		{"empty list", "10.1.2.3", "", false},
		{"whitespace entries", "10.1.2.3", " 10.0.0.0/8 ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ipAllowed(tt.sourceIP, tt.ranges); got != tt.want {
				t.Errorf("ipAllowed(%q, %q) = %v, want %v", tt.sourceIP, tt.ranges, got, tt.want)
			}
		})
	}
}
