package ipstack

import (
	"log/slog"
	"net/netip"
)

// Router forwards datagrams between its interfaces.
type Router struct {
	interfaces      []*NetworkInterface
	ForwardingTable ForwardingTable
}

func NewRouter() *Router {
	return &Router{}
}

// AddInterface attaches iface and returns its index for use in routes.
func (r *Router) AddInterface(iface *NetworkInterface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

func (r *Router) Interface(n int) *NetworkInterface {
	return r.interfaces[n]
}

func (r *Router) Interfaces() []*NetworkInterface {
	return r.interfaces
}

// AddRoute appends a route. Pass an invalid nextHop for a directly attached network.
func (r *Router) AddRoute(prefix netip.Prefix, nextHop netip.Addr, iface int) {
	slog.Debug("Adding route", "Prefix", prefix, "NextHop", nextHop, "Interface", iface)
	r.ForwardingTable.AddRoute(prefix, nextHop, iface)
}

// Route drains every interface's received datagrams and forwards each one.
func (r *Router) Route() {
	for _, iface := range r.interfaces {
		for {
			d, ok := iface.PopDatagram()
			if !ok {
				break
			}
			r.forward(d)
		}
	}
}

func (r *Router) forward(d Datagram) {
	route, ok := r.ForwardingTable.Lookup(d.Dst())
	if !ok {
		slog.Debug("Dropping datagram, no route", "Dst", d.Dst())
		return
	}
	if d.TTL() <= 1 {
		slog.Debug("Dropping datagram, TTL expired", "Src", d.Src(), "Dst", d.Dst())
		return
	}
	if route.Interface < 0 || route.Interface >= len(r.interfaces) {
		slog.Debug("Dropping datagram, route names unknown interface", "Interface", route.Interface)
		return
	}

	d.DecrementTTL()
	r.interfaces[route.Interface].SendDatagram(d, route.NextHopFor(d.Dst()))
}
