package ipstack

import (
	"log/slog"
	"net/netip"

	"github.com/pkg/errors"
)

var (
	ErrNoRoute          = errors.New("no route to host")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnknownInterface = errors.New("unknown interface")
)

const MAX_DATAGRAM_SIZE = 1400

type HandlerFunc func(*Datagram, *IPStack)

// IPStack is the network layer of a host: it sends datagrams out of the
// interface chosen by its forwarding table and hands datagrams addressed
// to it to the registered protocol handler.
type IPStack struct {
	Interfaces      []*NetworkInterface
	ForwardingTable ForwardingTable
	Handlers        map[Protocol]HandlerFunc

	loopback []Datagram
}

func NewIPStack() *IPStack {
	return &IPStack{
		Handlers: make(map[Protocol]HandlerFunc),
	}
}

func (s *IPStack) AddInterface(iface *NetworkInterface) int {
	s.Interfaces = append(s.Interfaces, iface)
	return len(s.Interfaces) - 1
}

func (s *IPStack) InterfaceByName(name string) (*NetworkInterface, error) {
	for _, iface := range s.Interfaces {
		if iface.Name == name {
			return iface, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownInterface, "%q", name)
}

func (s *IPStack) RegisterHandler(protocol Protocol, handler HandlerFunc) {
	s.Handlers[protocol] = handler
}

// IsLocal reports whether addr belongs to one of this host's interfaces.
func (s *IPStack) IsLocal(addr netip.Addr) bool {
	for _, iface := range s.Interfaces {
		if iface.IPAddr() == addr {
			return true
		}
	}
	return false
}

// SourceFor returns the local address datagrams to dst are sent from.
func (s *IPStack) SourceFor(dst netip.Addr) (netip.Addr, error) {
	if s.IsLocal(dst) {
		return dst, nil
	}
	route, ok := s.ForwardingTable.Lookup(dst)
	if !ok || route.Interface >= len(s.Interfaces) {
		return netip.Addr{}, errors.Wrapf(ErrNoRoute, "%s", dst)
	}
	return s.Interfaces[route.Interface].IPAddr(), nil
}

// SendIP wraps data in a datagram and sends it toward dst.
func (s *IPStack) SendIP(dst netip.Addr, protocol Protocol, data []byte) error {
	if len(data) > MAX_DATAGRAM_SIZE {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(data))
	}

	if s.IsLocal(dst) {
		s.loopback = append(s.loopback, NewDatagram(dst, dst, protocol, DEFAULT_TTL, data))
		return nil
	}

	route, ok := s.ForwardingTable.Lookup(dst)
	if !ok || route.Interface >= len(s.Interfaces) {
		return errors.Wrapf(ErrNoRoute, "%s", dst)
	}
	iface := s.Interfaces[route.Interface]

	d := NewDatagram(iface.IPAddr(), dst, protocol, DEFAULT_TTL, data)
	iface.SendDatagram(d, route.NextHopFor(dst))
	return nil
}

// Deliver drains every interface and dispatches datagrams addressed to this
// host, including ones this host sent to itself.
func (s *IPStack) Deliver() {
	for len(s.loopback) > 0 {
		d := s.loopback[0]
		s.loopback = s.loopback[1:]
		s.HandlePacket(&d)
	}

	for _, iface := range s.Interfaces {
		for {
			d, ok := iface.PopDatagram()
			if !ok {
				break
			}
			if !s.IsLocal(d.Dst()) {
				slog.Debug("Dropping datagram for another host", "Interface", iface.Name, "Dst", d.Dst())
				continue
			}
			s.HandlePacket(&d)
		}
	}
}

func (s *IPStack) HandlePacket(d *Datagram) {
	handler, ok := s.Handlers[d.Protocol()]
	if !ok {
		slog.Debug("Dropping datagram, no handler", "Protocol", d.Protocol())
		return
	}
	handler(d, s)
}

func (s *IPStack) Tick(ms uint64) {
	for _, iface := range s.Interfaces {
		iface.Tick(ms)
	}
}
