package ipstack

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/pkg/errors"
)

func newTestHost() *IPStack {
	s := NewIPStack()
	idx := s.AddInterface(newTestInterface())
	s.ForwardingTable.AddRoute(netip.MustParsePrefix("10.0.0.0/24"), netip.Addr{}, idx)
	s.ForwardingTable.AddRoute(netip.MustParsePrefix("0.0.0.0/0"), netip.MustParseAddr("10.0.0.254"), idx)
	return s
}

func TestIPStackSendIPRoutes(t *testing.T) {
	s := newTestHost()
	iface := s.Interfaces[0]

	if err := s.SendIP(remoteIP, TEST_PROTOCOL, []byte("near")); err != nil {
		t.Fatalf("SendIP: %v", err)
	}
	if err := s.SendIP(netip.MustParseAddr("8.8.8.8"), TEST_PROTOCOL, []byte("far")); err != nil {
		t.Fatalf("SendIP: %v", err)
	}

	frames := drainFrames(iface)
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want 2 ARP requests", len(frames))
	}
	if got := mustARP(t, frames[0]).TargetIP; got != remoteIP {
		t.Errorf("first request for %s, want %s", got, remoteIP)
	}
	if got := mustARP(t, frames[1]).TargetIP; got != netip.MustParseAddr("10.0.0.254") {
		t.Errorf("second request for %s, want the gateway", got)
	}
}

func TestIPStackSendIPErrors(t *testing.T) {
	s := NewIPStack()
	s.AddInterface(newTestInterface())
	s.ForwardingTable.AddRoute(netip.MustParsePrefix("10.0.0.0/24"), netip.Addr{}, 0)

	if err := s.SendIP(netip.MustParseAddr("8.8.8.8"), TEST_PROTOCOL, nil); !errors.Is(err, ErrNoRoute) {
		t.Errorf("SendIP off-net = %v, want %v", err, ErrNoRoute)
	}
	if err := s.SendIP(remoteIP, TEST_PROTOCOL, make([]byte, MAX_DATAGRAM_SIZE+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("SendIP oversized = %v, want %v", err, ErrPayloadTooLarge)
	}
	if _, err := s.SourceFor(netip.MustParseAddr("8.8.8.8")); !errors.Is(err, ErrNoRoute) {
		t.Errorf("SourceFor off-net = %v, want %v", err, ErrNoRoute)
	}
	if _, err := s.InterfaceByName("nope"); !errors.Is(err, ErrUnknownInterface) {
		t.Errorf("InterfaceByName = %v, want %v", err, ErrUnknownInterface)
	}
}

func TestIPStackSourceFor(t *testing.T) {
	s := newTestHost()

	for _, dst := range []string{"10.0.0.2", "8.8.8.8", "10.0.0.1"} {
		got, err := s.SourceFor(netip.MustParseAddr(dst))
		if err != nil || got != localIP {
			t.Errorf("SourceFor(%s) = %s, %v, want %s", dst, got, err, localIP)
		}
	}
}

func TestIPStackLoopback(t *testing.T) {
	s := newTestHost()

	var got []Datagram
	s.RegisterHandler(TEST_PROTOCOL, func(d *Datagram, _ *IPStack) {
		got = append(got, *d)
	})

	if err := s.SendIP(localIP, TEST_PROTOCOL, []byte("self")); err != nil {
		t.Fatalf("SendIP: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("loopback delivered before Deliver")
	}
	if frames := drainFrames(s.Interfaces[0]); len(frames) != 0 {
		t.Errorf("loopback datagram went out on the link: %+v", frames)
	}

	s.Deliver()
	if len(got) != 1 || !bytes.Equal(got[0].Payload, []byte("self")) || got[0].Src() != localIP {
		t.Errorf("delivered %+v, want one datagram from %s", got, localIP)
	}
}

func TestIPStackDeliverDispatches(t *testing.T) {
	s := newTestHost()
	iface := s.Interfaces[0]

	var test, tcp int
	s.RegisterHandler(TEST_PROTOCOL, func(*Datagram, *IPStack) { test++ })
	s.RegisterHandler(TCP_PROTOCOL, func(*Datagram, *IPStack) { tcp++ })

	inject(t, iface, NewDatagram(remoteIP, localIP, TEST_PROTOCOL, DEFAULT_TTL, []byte("a")))
	inject(t, iface, NewDatagram(remoteIP, localIP, TCP_PROTOCOL, DEFAULT_TTL, []byte("b")))
	inject(t, iface, NewDatagram(remoteIP, otherIP, TEST_PROTOCOL, DEFAULT_TTL, []byte("c")))
	inject(t, iface, NewDatagram(remoteIP, localIP, Protocol(200), DEFAULT_TTL, []byte("d")))
	s.Deliver()

	if test != 1 || tcp != 1 {
		t.Errorf("handled test=%d tcp=%d, want 1 each", test, tcp)
	}
	if got := iface.DatagramsReceived(); got != 0 {
		t.Errorf("%d datagrams left undelivered", got)
	}
}
