package ipstack

import (
	"fmt"
	"io"
	"net/netip"
	"strings"
)

// ReplNode is the part of a host or router the REPL can inspect.
type ReplNode struct {
	Interfaces []*NetworkInterface
	Links      []*UDPLink
	Table      *ForwardingTable
	// SendIP is nil on routers.
	SendIP func(dst netip.Addr, protocol Protocol, data []byte) error
}

// HandleCommand runs one REPL command and reports whether it was recognised.
func (n *ReplNode) HandleCommand(w io.Writer, args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "li":
		// Name / Addr / State
		fmt.Fprintln(w, "Name  Addr          Ethernet           State")
		for i, iface := range n.Interfaces {
			state := "up"
			if n.link(i).IsDown() {
				state = "down"
			}
			fmt.Fprintf(w, "%-5s %-13s %s  %s\n", iface.Name, iface.IPAddr(), iface.EthernetAddr(), state)
		}
	case "ln":
		fmt.Fprintln(w, "Iface  UDPAddr")
		for i, link := range n.Links {
			if link.IsDown() {
				continue
			}
			for _, neighbor := range link.Neighbors {
				fmt.Fprintf(w, "%-6s %s\n", n.Interfaces[i].Name, neighbor)
			}
		}
	case "lr":
		fmt.Fprintln(w, "T  Prefix              Next hop         Iface")
		for _, r := range n.Table.Entries {
			kind, nextHop := "S", r.NextHop.String()
			if r.IsDirect() {
				kind, nextHop = "L", "LOCAL"
			}
			fmt.Fprintf(w, "%s  %-19s %-16s %s\n", kind, r.Prefix, nextHop, n.Interfaces[r.Interface].Name)
		}
	case "la":
		fmt.Fprintln(w, "Iface  IP               Ethernet           TTL(ms)")
		for _, iface := range n.Interfaces {
			for _, e := range iface.ARPEntries() {
				fmt.Fprintf(w, "%-6s %-16s %s  %d\n", iface.Name, e.IP, e.Ethernet, e.Remaining)
			}
		}
	case "down", "up":
		if len(args) != 2 {
			fmt.Fprintf(w, "Usage: %s <ifname>\n", args[0])
			return true
		}
		for i, iface := range n.Interfaces {
			if iface.Name == args[1] {
				n.link(i).SetDown(args[0] == "down")
				return true
			}
		}
		fmt.Fprintf(w, "Unknown interface %s\n", args[1])
	case "send":
		if n.SendIP == nil {
			return false
		}
		if len(args) < 3 {
			fmt.Fprintln(w, "Usage: send <addr> <message ...>")
			return true
		}
		dst, err := netip.ParseAddr(args[1])
		if err != nil {
			fmt.Fprintln(w, "Error parsing address:", err)
			return true
		}
		if err := n.SendIP(dst, TEST_PROTOCOL, []byte(strings.Join(args[2:], " "))); err != nil {
			fmt.Fprintln(w, "Error sending packet:", err)
		}
	default:
		return false
	}
	return true
}

func (n *ReplNode) link(i int) *UDPLink {
	if i < len(n.Links) {
		return n.Links[i]
	}
	return nil
}

// PrintPacket returns a handler that prints test protocol payloads to w.
func PrintPacket(w io.Writer) HandlerFunc {
	return func(d *Datagram, _ *IPStack) {
		fmt.Fprintf(w, "Received test packet: Src: %s, Dst: %s, TTL: %d, Data: %s\n", d.Src(), d.Dst(), d.TTL(), string(d.Payload))
	}
}
