package ipstack

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/pkg/errors"
)

const MAX_FRAME_SIZE = 1500 + 14

// UDPLink emulates an Ethernet segment over UDP: every frame is written to
// each neighbor on the link, and receivers filter by destination address.
type UDPLink struct {
	Name      string
	Conn      *net.UDPConn
	Neighbors []netip.AddrPort
	down      atomic.Bool
}

func NewUDPLink(name string, local netip.AddrPort, neighbors []netip.AddrPort) (*UDPLink, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s for %s", local, name)
	}
	return &UDPLink{
		Name:      name,
		Conn:      conn,
		Neighbors: neighbors,
	}, nil
}

func (l *UDPLink) SetDown(down bool) {
	if l == nil {
		return
	}
	l.down.Store(down)
}

func (l *UDPLink) IsDown() bool {
	return l != nil && l.down.Load()
}

// Transmit implements OutputPort.
func (l *UDPLink) Transmit(iface *NetworkInterface, frame EthernetFrame) {
	if l.IsDown() {
		return
	}

	b := frame.Marshal()
	for _, n := range l.Neighbors {
		if _, err := l.Conn.WriteToUDPAddrPort(b, n); err != nil {
			slog.Debug("Error writing frame", "Interface", iface.Name, "Neighbor", n, "error", err)
		}
	}
}

// Listen reads frames until ctx is done or the socket is closed, passing
// each well-formed frame to deliver.
func (l *UDPLink) Listen(ctx context.Context, deliver func(EthernetFrame)) error {
	go func() {
		<-ctx.Done()
		l.Conn.Close()
	}()

	buffer := make([]byte, MAX_FRAME_SIZE)
	for {
		n, _, err := l.Conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "reading from %s", l.Name)
		}
		if l.IsDown() {
			continue
		}

		frame, err := ParseEthernetFrame(buffer[:n])
		if err != nil {
			slog.Debug("Dropping malformed frame", "Interface", l.Name, "error", err)
			continue
		}
		deliver(frame)
	}
}

func (l *UDPLink) Close() error {
	return l.Conn.Close()
}
