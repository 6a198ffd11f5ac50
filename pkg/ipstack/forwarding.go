package ipstack

import (
	"net/netip"
)

// Route sends datagrams matching Prefix out of interface Interface. An
// invalid NextHop means the destination is directly attached.
type Route struct {
	Prefix    netip.Prefix
	NextHop   netip.Addr
	Interface int
}

func (r Route) IsDirect() bool {
	return !r.NextHop.IsValid()
}

// NextHopFor returns the address to resolve on the link for dst.
func (r Route) NextHopFor(dst netip.Addr) netip.Addr {
	if r.IsDirect() {
		return dst
	}
	return r.NextHop
}

// ForwardingTable is an append-only route list searched by longest prefix match.
type ForwardingTable struct {
	Entries []Route
}

// AddRoute appends a route. Host bits beyond the prefix length are ignored.
func (t *ForwardingTable) AddRoute(prefix netip.Prefix, nextHop netip.Addr, iface int) {
	t.Entries = append(t.Entries, Route{
		Prefix:    prefix.Masked(),
		NextHop:   nextHop,
		Interface: iface,
	})
}

// Lookup returns the longest matching route. Among equally long matches the
// earliest added wins.
func (t *ForwardingTable) Lookup(dst netip.Addr) (Route, bool) {
	best := -1
	for i, r := range t.Entries {
		if !r.Prefix.Contains(dst) {
			continue
		}
		// Strictly longer only: a later route of equal length never displaces an earlier one.
		if best < 0 || r.Prefix.Bits() > t.Entries[best].Prefix.Bits() {
			best = i
		}
	}
	if best < 0 {
		return Route{}, false
	}
	return t.Entries[best], true
}
