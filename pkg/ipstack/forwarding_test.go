package ipstack

import (
	"net/netip"
	"testing"
)

func TestForwardingTableLongestPrefix(t *testing.T) {
	var table ForwardingTable
	table.AddRoute(netip.MustParsePrefix("0.0.0.0/0"), netip.MustParseAddr("10.0.0.254"), 0)
	table.AddRoute(netip.MustParsePrefix("10.1.0.0/16"), netip.MustParseAddr("10.0.0.2"), 1)
	table.AddRoute(netip.MustParsePrefix("10.1.2.0/24"), netip.Addr{}, 2)
	table.AddRoute(netip.MustParsePrefix("10.1.2.3/32"), netip.MustParseAddr("10.0.0.9"), 3)

	tests := []struct {
		dst       string
		iface     int
		nextHop   string
		directHop bool
	}{
		{"8.8.8.8", 0, "10.0.0.254", false},
		{"10.1.9.9", 1, "10.0.0.2", false},
		{"10.1.2.7", 2, "10.1.2.7", true},
		{"10.1.2.3", 3, "10.0.0.9", false},
	}

	for _, tt := range tests {
		dst := netip.MustParseAddr(tt.dst)
		route, ok := table.Lookup(dst)
		if !ok {
			t.Errorf("Lookup(%s): no route", tt.dst)
			continue
		}
		if route.Interface != tt.iface {
			t.Errorf("Lookup(%s) interface = %d, want %d", tt.dst, route.Interface, tt.iface)
		}
		if route.IsDirect() != tt.directHop {
			t.Errorf("Lookup(%s) direct = %v, want %v", tt.dst, route.IsDirect(), tt.directHop)
		}
		if got := route.NextHopFor(dst); got != netip.MustParseAddr(tt.nextHop) {
			t.Errorf("NextHopFor(%s) = %s, want %s", tt.dst, got, tt.nextHop)
		}
	}
}

func TestForwardingTableTieGoesToEarliest(t *testing.T) {
	var table ForwardingTable
	table.AddRoute(netip.MustParsePrefix("192.168.0.0/16"), netip.Addr{}, 4)
	table.AddRoute(netip.MustParsePrefix("192.168.0.0/16"), netip.Addr{}, 7)

	route, ok := table.Lookup(netip.MustParseAddr("192.168.3.4"))
	if !ok || route.Interface != 4 {
		t.Errorf("Lookup = %+v, %v, want interface 4", route, ok)
	}
}

func TestForwardingTableMasksPrefix(t *testing.T) {
	var table ForwardingTable
	table.AddRoute(netip.MustParsePrefix("172.16.5.77/12"), netip.Addr{}, 0)

	if got := table.Entries[0].Prefix; got != netip.MustParsePrefix("172.16.0.0/12") {
		t.Errorf("stored prefix = %s, want 172.16.0.0/12", got)
	}
	if _, ok := table.Lookup(netip.MustParseAddr("172.31.255.255")); !ok {
		t.Error("address inside the masked prefix did not match")
	}
}

func TestForwardingTableNoRoute(t *testing.T) {
	var table ForwardingTable
	table.AddRoute(netip.MustParsePrefix("10.0.0.0/8"), netip.Addr{}, 0)

	if route, ok := table.Lookup(netip.MustParseAddr("11.0.0.1")); ok {
		t.Errorf("Lookup matched %+v, want no route", route)
	}
}
