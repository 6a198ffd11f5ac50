package ipstack

import (
	"bytes"
	"net/netip"
	"testing"
)

var (
	localEth  = EthernetAddress{0x02, 0x00, 0x0a, 0x00, 0x00, 0x01}
	localIP   = netip.MustParseAddr("10.0.0.1")
	remoteEth = EthernetAddress{0x02, 0x00, 0x0a, 0x00, 0x00, 0x02}
	remoteIP  = netip.MustParseAddr("10.0.0.2")
	otherIP   = netip.MustParseAddr("10.0.0.3")
)

func newTestInterface() *NetworkInterface {
	return NewNetworkInterface("if0", nil, localEth, localIP, DefaultARPConfig())
}

func drainFrames(i *NetworkInterface) []EthernetFrame {
	var out []EthernetFrame
	for {
		f, ok := i.MaybeSend()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func testDatagram(dst netip.Addr, payload string) Datagram {
	return NewDatagram(localIP, dst, TEST_PROTOCOL, DEFAULT_TTL, []byte(payload))
}

func arpFrame(t *testing.T, msg ARPMessage, dst EthernetAddress) EthernetFrame {
	t.Helper()
	return EthernetFrame{Dst: dst, Src: msg.SenderEthernet, Type: ETHERTYPE_ARP, Payload: msg.Marshal()}
}

func mustARP(t *testing.T, f EthernetFrame) ARPMessage {
	t.Helper()
	if f.Type != ETHERTYPE_ARP {
		t.Fatalf("frame type = %#04x, want ARP", f.Type)
	}
	msg, err := ParseARPMessage(f.Payload)
	if err != nil {
		t.Fatalf("ParseARPMessage: %v", err)
	}
	return msg
}

func mustIPv4(t *testing.T, f EthernetFrame) Datagram {
	t.Helper()
	if f.Type != ETHERTYPE_IPV4 {
		t.Fatalf("frame type = %#04x, want IPv4", f.Type)
	}
	d, err := ParseDatagram(f.Payload)
	if err != nil {
		t.Fatalf("ParseDatagram: %v", err)
	}
	return d
}

func TestInterfaceRequestsUnknownNextHop(t *testing.T) {
	i := newTestInterface()

	i.SendDatagram(testDatagram(remoteIP, "one"), remoteIP)
	frames := drainFrames(i)
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1 ARP request", len(frames))
	}
	if frames[0].Dst != ETHERNET_BROADCAST || frames[0].Src != localEth {
		t.Errorf("request addressed %s -> %s, want %s -> broadcast", frames[0].Src, frames[0].Dst, localEth)
	}
	req := mustARP(t, frames[0])
	want := ARPMessage{Opcode: ARP_REQUEST, SenderEthernet: localEth, SenderIP: localIP, TargetIP: remoteIP}
	if req != want {
		t.Errorf("request = %+v, want %+v", req, want)
	}

	// Within the request interval the datagram only queues.
	i.Tick(ARP_REQUEST_INTERVAL - 1)
	i.SendDatagram(testDatagram(remoteIP, "two"), remoteIP)
	if frames := drainFrames(i); len(frames) != 0 {
		t.Errorf("sent %d frames while a request was outstanding", len(frames))
	}
	if got := i.PendingDatagrams(remoteIP); got != 2 {
		t.Errorf("PendingDatagrams = %d, want 2", got)
	}
}

func TestInterfaceReplyFlushesQueue(t *testing.T) {
	i := newTestInterface()
	i.SendDatagram(testDatagram(remoteIP, "one"), remoteIP)
	i.SendDatagram(testDatagram(remoteIP, "two"), remoteIP)
	drainFrames(i)

	reply := ARPMessage{
		Opcode:         ARP_REPLY,
		SenderEthernet: remoteEth,
		SenderIP:       remoteIP,
		TargetEthernet: localEth,
		TargetIP:       localIP,
	}
	i.RecvFrame(arpFrame(t, reply, localEth))

	frames := drainFrames(i)
	if len(frames) != 2 {
		t.Fatalf("sent %d frames after reply, want 2", len(frames))
	}
	for n, want := range []string{"one", "two"} {
		if frames[n].Dst != remoteEth {
			t.Errorf("frame %d dst = %s, want %s", n, frames[n].Dst, remoteEth)
		}
		if d := mustIPv4(t, frames[n]); !bytes.Equal(d.Payload, []byte(want)) {
			t.Errorf("frame %d payload = %q, want %q", n, d.Payload, want)
		}
	}
	if got := i.PendingDatagrams(remoteIP); got != 0 {
		t.Errorf("PendingDatagrams = %d, want 0", got)
	}

	// Now cached.
	i.SendDatagram(testDatagram(remoteIP, "three"), remoteIP)
	frames = drainFrames(i)
	if len(frames) != 1 || frames[0].Type != ETHERTYPE_IPV4 || frames[0].Dst != remoteEth {
		t.Errorf("cached send = %+v, want one IPv4 frame to %s", frames, remoteEth)
	}
}

func TestInterfaceAnswersRequestForItself(t *testing.T) {
	i := newTestInterface()

	req := ARPMessage{Opcode: ARP_REQUEST, SenderEthernet: remoteEth, SenderIP: remoteIP, TargetIP: localIP}
	i.RecvFrame(arpFrame(t, req, ETHERNET_BROADCAST))

	frames := drainFrames(i)
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1 reply", len(frames))
	}
	if frames[0].Dst != remoteEth {
		t.Errorf("reply dst = %s, want %s", frames[0].Dst, remoteEth)
	}
	want := ARPMessage{
		Opcode:         ARP_REPLY,
		SenderEthernet: localEth,
		SenderIP:       localIP,
		TargetEthernet: remoteEth,
		TargetIP:       remoteIP,
	}
	if got := mustARP(t, frames[0]); got != want {
		t.Errorf("reply = %+v, want %+v", got, want)
	}
	if eth, ok := i.LookupARP(remoteIP); !ok || eth != remoteEth {
		t.Errorf("requester not learned: %s, %v", eth, ok)
	}
}

func TestInterfaceLearnsFromRequestForOthers(t *testing.T) {
	i := newTestInterface()

	req := ARPMessage{Opcode: ARP_REQUEST, SenderEthernet: remoteEth, SenderIP: remoteIP, TargetIP: otherIP}
	i.RecvFrame(arpFrame(t, req, ETHERNET_BROADCAST))

	if frames := drainFrames(i); len(frames) != 0 {
		t.Errorf("answered a request for another host: %+v", frames)
	}
	if _, ok := i.LookupARP(remoteIP); !ok {
		t.Error("sender of an overheard request not learned")
	}
}

func TestInterfaceRetriesAfterInterval(t *testing.T) {
	i := newTestInterface()
	i.SendDatagram(testDatagram(remoteIP, "one"), remoteIP)
	drainFrames(i)

	i.Tick(ARP_REQUEST_INTERVAL)
	frames := drainFrames(i)
	if len(frames) != 1 || mustARP(t, frames[0]).TargetIP != remoteIP {
		t.Fatalf("retry = %+v, want one request for %s", frames, remoteIP)
	}
	if got := i.PendingDatagrams(remoteIP); got != 0 {
		t.Errorf("PendingDatagrams after timeout = %d, want 0", got)
	}

	// Idle request timers are dropped once they lapse.
	i.Tick(ARP_REQUEST_INTERVAL)
	if frames := drainFrames(i); len(frames) != 0 {
		t.Errorf("requested again with nothing queued: %+v", frames)
	}
	i.SendDatagram(testDatagram(remoteIP, "two"), remoteIP)
	if frames := drainFrames(i); len(frames) != 1 || frames[0].Type != ETHERTYPE_ARP {
		t.Errorf("send after lapse = %+v, want a fresh request", frames)
	}
}

func TestInterfaceCacheExpires(t *testing.T) {
	i := newTestInterface()
	reply := ARPMessage{Opcode: ARP_REPLY, SenderEthernet: remoteEth, SenderIP: remoteIP, TargetEthernet: localEth, TargetIP: localIP}
	i.RecvFrame(arpFrame(t, reply, localEth))

	i.Tick(ARP_CACHE_TTL - 1)
	if _, ok := i.LookupARP(remoteIP); !ok {
		t.Fatal("entry expired early")
	}
	if got := i.ARPEntries(); len(got) != 1 || got[0].Remaining != 1 {
		t.Errorf("ARPEntries = %+v, want one entry with 1ms left", got)
	}

	i.Tick(1)
	if _, ok := i.LookupARP(remoteIP); ok {
		t.Error("entry outlived its TTL")
	}

	i.SendDatagram(testDatagram(remoteIP, "x"), remoteIP)
	if frames := drainFrames(i); len(frames) != 1 || frames[0].Type != ETHERTYPE_ARP {
		t.Errorf("send after expiry = %+v, want an ARP request", frames)
	}
}

func TestInterfaceFiltersFrames(t *testing.T) {
	i := newTestInterface()
	d := testDatagram(localIP, "hi")
	payload, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	i.RecvFrame(EthernetFrame{Dst: remoteEth, Src: remoteEth, Type: ETHERTYPE_IPV4, Payload: payload})
	if got := i.DatagramsReceived(); got != 0 {
		t.Fatalf("accepted a frame for another host")
	}

	i.RecvFrame(EthernetFrame{Dst: localEth, Src: remoteEth, Type: ETHERTYPE_IPV4, Payload: payload[:10]})
	i.RecvFrame(EthernetFrame{Dst: localEth, Src: remoteEth, Type: ETHERTYPE_ARP, Payload: []byte{1, 2, 3}})
	i.RecvFrame(EthernetFrame{Dst: localEth, Src: remoteEth, Type: 0x86dd, Payload: payload})
	if got := i.DatagramsReceived(); got != 0 {
		t.Fatalf("accepted malformed or foreign frames")
	}

	i.RecvFrame(EthernetFrame{Dst: localEth, Src: remoteEth, Type: ETHERTYPE_IPV4, Payload: payload})
	i.RecvFrame(EthernetFrame{Dst: ETHERNET_BROADCAST, Src: remoteEth, Type: ETHERTYPE_IPV4, Payload: payload})
	if got := i.DatagramsReceived(); got != 2 {
		t.Fatalf("DatagramsReceived = %d, want 2", got)
	}
	got, ok := i.PopDatagram()
	if !ok || !bytes.Equal(got.Payload, []byte("hi")) {
		t.Errorf("PopDatagram = %q, %v", got.Payload, ok)
	}
}

type recordingPort struct {
	frames []EthernetFrame
}

func (p *recordingPort) Transmit(_ *NetworkInterface, frame EthernetFrame) {
	p.frames = append(p.frames, frame)
}

func TestInterfaceUsesOutputPort(t *testing.T) {
	port := &recordingPort{}
	i := NewNetworkInterface("if0", port, localEth, localIP, DefaultARPConfig())

	i.SendDatagram(testDatagram(remoteIP, "x"), remoteIP)
	if len(port.frames) != 1 {
		t.Errorf("port saw %d frames, want 1", len(port.frames))
	}
	if _, ok := i.MaybeSend(); ok {
		t.Error("frame queued despite an output port")
	}
}
