package ipstack

import (
	"fmt"
	"net/netip"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

type EthernetAddress [6]byte

var ETHERNET_BROADCAST = EthernetAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (a EthernetAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a EthernetAddress) linkAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(a[:])
}

func ParseEthernetAddress(s string) (EthernetAddress, error) {
	var a EthernetAddress
	_, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &a[0], &a[1], &a[2], &a[3], &a[4], &a[5])
	if err != nil {
		return EthernetAddress{}, errors.Wrapf(err, "parsing ethernet address %q", s)
	}
	return a, nil
}

type EtherType uint16

const (
	ETHERTYPE_IPV4 = EtherType(header.IPv4ProtocolNumber)
	ETHERTYPE_ARP  = EtherType(header.ARPProtocolNumber)
)

var (
	ErrShortFrame = errors.New("frame shorter than ethernet header")
	ErrBadARP     = errors.New("not an IPv4-over-ethernet ARP message")
)

type EthernetFrame struct {
	Dst     EthernetAddress
	Src     EthernetAddress
	Type    EtherType
	Payload []byte
}

func (f *EthernetFrame) Marshal() []byte {
	b := make([]byte, header.EthernetMinimumSize+len(f.Payload))
	header.Ethernet(b).Encode(&header.EthernetFields{
		SrcAddr: f.Src.linkAddress(),
		DstAddr: f.Dst.linkAddress(),
		Type:    tcpip.NetworkProtocolNumber(f.Type),
	})
	copy(b[header.EthernetMinimumSize:], f.Payload)
	return b
}

func ParseEthernetFrame(b []byte) (EthernetFrame, error) {
	if len(b) < header.EthernetMinimumSize {
		return EthernetFrame{}, ErrShortFrame
	}

	eth := header.Ethernet(b)
	f := EthernetFrame{
		Type:    EtherType(eth.Type()),
		Payload: make([]byte, len(b)-header.EthernetMinimumSize),
	}
	copy(f.Dst[:], eth.DestinationAddress())
	copy(f.Src[:], eth.SourceAddress())
	copy(f.Payload, b[header.EthernetMinimumSize:])
	return f, nil
}

type ARPOpcode uint16

const (
	ARP_REQUEST = ARPOpcode(header.ARPRequest)
	ARP_REPLY   = ARPOpcode(header.ARPReply)
)

type ARPMessage struct {
	Opcode         ARPOpcode
	SenderEthernet EthernetAddress
	SenderIP       netip.Addr
	TargetEthernet EthernetAddress
	TargetIP       netip.Addr
}

func (m *ARPMessage) Marshal() []byte {
	b := make([]byte, header.ARPSize)
	arp := header.ARP(b)
	arp.SetIPv4OverEthernet()
	arp.SetOp(header.ARPOp(m.Opcode))

	senderIP, targetIP := m.SenderIP.As4(), m.TargetIP.As4()
	copy(arp.HardwareAddressSender(), m.SenderEthernet[:])
	copy(arp.ProtocolAddressSender(), senderIP[:])
	copy(arp.HardwareAddressTarget(), m.TargetEthernet[:])
	copy(arp.ProtocolAddressTarget(), targetIP[:])
	return b
}

func ParseARPMessage(b []byte) (ARPMessage, error) {
	arp := header.ARP(b)
	if !arp.IsValid() {
		return ARPMessage{}, ErrBadARP
	}

	op := ARPOpcode(arp.Op())
	if op != ARP_REQUEST && op != ARP_REPLY {
		return ARPMessage{}, errors.Wrapf(ErrBadARP, "opcode %d", op)
	}

	m := ARPMessage{Opcode: op}
	copy(m.SenderEthernet[:], arp.HardwareAddressSender())
	copy(m.TargetEthernet[:], arp.HardwareAddressTarget())
	m.SenderIP = netip.AddrFrom4([4]byte(arp.ProtocolAddressSender()))
	m.TargetIP = netip.AddrFrom4([4]byte(arp.ProtocolAddressTarget()))
	return m, nil
}
