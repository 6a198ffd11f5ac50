package ipstack

import (
	"log/slog"
	"net/netip"
	"sort"
)

const (
	ARP_CACHE_TTL        = 30000 // ms
	ARP_REQUEST_INTERVAL = 5000  // ms
)

type ARPConfig struct {
	CacheTTL        uint64
	RequestInterval uint64
}

func DefaultARPConfig() ARPConfig {
	return ARPConfig{
		CacheTTL:        ARP_CACHE_TTL,
		RequestInterval: ARP_REQUEST_INTERVAL,
	}
}

// OutputPort delivers frames to the medium on behalf of an interface.
type OutputPort interface {
	Transmit(iface *NetworkInterface, frame EthernetFrame)
}

type arpEntry struct {
	ethernet EthernetAddress
	ttl      uint64
}

// ARPEntry is a snapshot of one cache mapping.
type ARPEntry struct {
	IP        netip.Addr
	Ethernet  EthernetAddress
	Remaining uint64
}

// NetworkInterface connects IP datagrams to an Ethernet link, resolving
// next hops with ARP.
type NetworkInterface struct {
	Name     string
	ethernet EthernetAddress
	ip       netip.Addr
	port     OutputPort
	cfg      ARPConfig

	arpCache     map[netip.Addr]arpEntry
	requestTimer map[netip.Addr]uint64
	waiting      map[netip.Addr][]Datagram

	datagramsIn []Datagram
	framesOut   []EthernetFrame
}

// NewNetworkInterface builds an interface. A nil port queues outbound
// frames for MaybeSend.
func NewNetworkInterface(name string, port OutputPort, ethernet EthernetAddress, ip netip.Addr, cfg ARPConfig) *NetworkInterface {
	slog.Debug("Network interface created", "Interface", name, "Ethernet", ethernet, "IP", ip)
	return &NetworkInterface{
		Name:         name,
		ethernet:     ethernet,
		ip:           ip,
		port:         port,
		cfg:          cfg,
		arpCache:     make(map[netip.Addr]arpEntry),
		requestTimer: make(map[netip.Addr]uint64),
		waiting:      make(map[netip.Addr][]Datagram),
	}
}

func (i *NetworkInterface) IPAddr() netip.Addr {
	return i.ip
}

func (i *NetworkInterface) EthernetAddr() EthernetAddress {
	return i.ethernet
}

// SendDatagram sends d toward nextHop, resolving its Ethernet address first if needed.
func (i *NetworkInterface) SendDatagram(d Datagram, nextHop netip.Addr) {
	if entry, ok := i.arpCache[nextHop]; ok {
		i.sendIPv4(d, entry.ethernet)
		return
	}

	elapsed, inFlight := i.requestTimer[nextHop]
	if !inFlight || elapsed >= i.cfg.RequestInterval {
		i.waiting[nextHop] = []Datagram{d}
		i.sendARPRequest(nextHop)
		return
	}
	i.waiting[nextHop] = append(i.waiting[nextHop], d)
}

// RecvFrame handles one inbound frame. IPv4 payloads are queued for DatagramsReceived.
func (i *NetworkInterface) RecvFrame(frame EthernetFrame) {
	if frame.Dst != i.ethernet && frame.Dst != ETHERNET_BROADCAST {
		return
	}

	switch frame.Type {
	case ETHERTYPE_IPV4:
		d, err := ParseDatagram(frame.Payload)
		if err != nil {
			slog.Debug("Dropping malformed datagram", "Interface", i.Name, "error", err)
			return
		}
		i.datagramsIn = append(i.datagramsIn, d)

	case ETHERTYPE_ARP:
		msg, err := ParseARPMessage(frame.Payload)
		if err != nil {
			slog.Debug("Dropping malformed ARP message", "Interface", i.Name, "error", err)
			return
		}
		i.handleARP(msg)

	default:
		slog.Debug("Dropping frame of unknown type", "Interface", i.Name, "type", frame.Type)
	}
}

func (i *NetworkInterface) handleARP(msg ARPMessage) {
	i.arpCache[msg.SenderIP] = arpEntry{ethernet: msg.SenderEthernet, ttl: i.cfg.CacheTTL}
	delete(i.requestTimer, msg.SenderIP)

	if queued, ok := i.waiting[msg.SenderIP]; ok {
		delete(i.waiting, msg.SenderIP)
		for _, d := range queued {
			i.sendIPv4(d, msg.SenderEthernet)
		}
	}

	if msg.Opcode == ARP_REQUEST && msg.TargetIP == i.ip {
		reply := ARPMessage{
			Opcode:         ARP_REPLY,
			SenderEthernet: i.ethernet,
			SenderIP:       i.ip,
			TargetEthernet: msg.SenderEthernet,
			TargetIP:       msg.SenderIP,
		}
		i.transmit(EthernetFrame{
			Dst:     msg.SenderEthernet,
			Src:     i.ethernet,
			Type:    ETHERTYPE_ARP,
			Payload: reply.Marshal(),
		})
	}
}

// Tick ages the ARP cache and retries requests that went unanswered.
func (i *NetworkInterface) Tick(ms uint64) {
	for ip, entry := range i.arpCache {
		if entry.ttl <= ms {
			delete(i.arpCache, ip)
			continue
		}
		entry.ttl -= ms
		i.arpCache[ip] = entry
	}

	for ip, elapsed := range i.requestTimer {
		elapsed += ms
		i.requestTimer[ip] = elapsed
		if elapsed < i.cfg.RequestInterval {
			continue
		}

		if len(i.waiting[ip]) == 0 {
			// Nothing left to deliver; the next send requests afresh.
			delete(i.requestTimer, ip)
			delete(i.waiting, ip)
			continue
		}
		delete(i.waiting, ip)
		i.sendARPRequest(ip)
	}
}

// MaybeSend pops a queued outbound frame. Only used without an OutputPort.
func (i *NetworkInterface) MaybeSend() (EthernetFrame, bool) {
	if len(i.framesOut) == 0 {
		return EthernetFrame{}, false
	}
	f := i.framesOut[0]
	i.framesOut = i.framesOut[1:]
	return f, true
}

// PopDatagram removes the oldest received datagram.
func (i *NetworkInterface) PopDatagram() (Datagram, bool) {
	if len(i.datagramsIn) == 0 {
		return Datagram{}, false
	}
	d := i.datagramsIn[0]
	i.datagramsIn = i.datagramsIn[1:]
	return d, true
}

func (i *NetworkInterface) DatagramsReceived() int {
	return len(i.datagramsIn)
}

func (i *NetworkInterface) LookupARP(ip netip.Addr) (EthernetAddress, bool) {
	entry, ok := i.arpCache[ip]
	return entry.ethernet, ok
}

func (i *NetworkInterface) PendingDatagrams(ip netip.Addr) int {
	return len(i.waiting[ip])
}

// ARPEntries lists the cache sorted by IP.
func (i *NetworkInterface) ARPEntries() []ARPEntry {
	entries := make([]ARPEntry, 0, len(i.arpCache))
	for ip, e := range i.arpCache {
		entries = append(entries, ARPEntry{IP: ip, Ethernet: e.ethernet, Remaining: e.ttl})
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].IP.Less(entries[b].IP)
	})
	return entries
}

func (i *NetworkInterface) sendIPv4(d Datagram, dst EthernetAddress) {
	payload, err := d.Marshal()
	if err != nil {
		slog.Debug("Dropping unencodable datagram", "Interface", i.Name, "error", err)
		return
	}
	i.transmit(EthernetFrame{
		Dst:     dst,
		Src:     i.ethernet,
		Type:    ETHERTYPE_IPV4,
		Payload: payload,
	})
}

func (i *NetworkInterface) sendARPRequest(target netip.Addr) {
	request := ARPMessage{
		Opcode:         ARP_REQUEST,
		SenderEthernet: i.ethernet,
		SenderIP:       i.ip,
		TargetIP:       target,
	}
	i.transmit(EthernetFrame{
		Dst:     ETHERNET_BROADCAST,
		Src:     i.ethernet,
		Type:    ETHERTYPE_ARP,
		Payload: request.Marshal(),
	})
	i.requestTimer[target] = 0
}

func (i *NetworkInterface) transmit(frame EthernetFrame) {
	if i.port == nil {
		i.framesOut = append(i.framesOut, frame)
		return
	}
	i.port.Transmit(i, frame)
}
