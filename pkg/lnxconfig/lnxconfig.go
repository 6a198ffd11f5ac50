package lnxconfig

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type RoutingMode int

const (
	RoutingTypeNone   RoutingMode = 0
	RoutingTypeStatic RoutingMode = 1
)

type InterfaceConfig struct {
	Name           string
	AssignedIP     netip.Addr
	AssignedPrefix netip.Prefix
	UDPAddr        netip.AddrPort
	MAC            [6]byte
}

type NeighborConfig struct {
	DestAddr      netip.Addr
	UDPAddr       netip.AddrPort
	InterfaceName string
}

// StaticRoute is a configured route. NextHop is invalid for routes that
// name an interface directly.
type StaticRoute struct {
	Prefix        netip.Prefix
	NextHop       netip.Addr
	InterfaceName string
}

type IPConfig struct {
	Interfaces   []InterfaceConfig
	Neighbors    []NeighborConfig
	RoutingMode  RoutingMode
	StaticRoutes []StaticRoute

	// Times are in milliseconds.
	ARPCacheTTL        uint64
	ARPRequestInterval uint64
	TickInterval       uint64
	TCPRTO             uint64
	TCPCapacity        uint64

	LogLevel slog.Level
}

func defaultConfig() *IPConfig {
	return &IPConfig{
		RoutingMode:        RoutingTypeStatic,
		ARPCacheTTL:        30000,
		ARPRequestInterval: 5000,
		TickInterval:       10,
		TCPRTO:             1000,
		TCPCapacity:        64000,
		LogLevel:           slog.LevelInfo,
	}
}

func ParseConfig(fileName string) (*IPConfig, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "opening config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", fileName)
	}
	return cfg, nil
}

// Parse reads a node description, one directive per line.
func Parse(r io.Reader) (*IPConfig, error) {
	cfg := defaultConfig()

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := cfg.parseDirective(fields); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	if err := cfg.resolveRoutes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *IPConfig) parseDirective(fields []string) error {
	switch fields[0] {
	case "interface":
		return cfg.parseInterface(fields)
	case "neighbor":
		return cfg.parseNeighbor(fields)
	case "routing":
		return cfg.parseRouting(fields)
	case "route":
		return cfg.parseRoute(fields)
	case "arp-cache-ttl":
		return parseUint(fields, &cfg.ARPCacheTTL)
	case "arp-request-interval":
		return parseUint(fields, &cfg.ARPRequestInterval)
	case "tick-interval":
		return parseUint(fields, &cfg.TickInterval)
	case "tcp-rto":
		return parseUint(fields, &cfg.TCPRTO)
	case "tcp-capacity":
		return parseUint(fields, &cfg.TCPCapacity)
	case "log-level":
		if len(fields) != 2 {
			return errors.New("usage: log-level <level>")
		}
		return errors.Wrap(cfg.LogLevel.UnmarshalText([]byte(fields[1])), "log-level")
	default:
		return errors.Errorf("unknown directive %q", fields[0])
	}
}

// interface <name> <ip>/<len> <udp-host:port> [<mac>]
func (cfg *IPConfig) parseInterface(fields []string) error {
	if len(fields) != 4 && len(fields) != 5 {
		return errors.New("usage: interface <name> <ip>/<len> <udp-addr> [<mac>]")
	}

	name := fields[1]
	if _, ok := cfg.Interface(name); ok {
		return errors.Errorf("duplicate interface %q", name)
	}

	prefix, err := netip.ParsePrefix(fields[2])
	if err != nil {
		return errors.Wrap(err, "interface address")
	}
	if !prefix.Addr().Is4() {
		return errors.Errorf("interface address %s is not IPv4", prefix)
	}
	udp, err := netip.ParseAddrPort(fields[3])
	if err != nil {
		return errors.Wrap(err, "interface UDP address")
	}

	iface := InterfaceConfig{
		Name:           name,
		AssignedIP:     prefix.Addr(),
		AssignedPrefix: prefix.Masked(),
		UDPAddr:        udp,
		MAC:            defaultMAC(prefix.Addr()),
	}
	if len(fields) == 5 {
		mac, err := net.ParseMAC(fields[4])
		if err != nil || len(mac) != 6 {
			return errors.Errorf("bad ethernet address %q", fields[4])
		}
		copy(iface.MAC[:], mac)
	}

	cfg.Interfaces = append(cfg.Interfaces, iface)
	return nil
}

// neighbor <ip> at <udp-host:port> via <ifname>
func (cfg *IPConfig) parseNeighbor(fields []string) error {
	if len(fields) != 6 || fields[2] != "at" || fields[4] != "via" {
		return errors.New("usage: neighbor <ip> at <udp-addr> via <ifname>")
	}

	addr, err := netip.ParseAddr(fields[1])
	if err != nil {
		return errors.Wrap(err, "neighbor address")
	}
	udp, err := netip.ParseAddrPort(fields[3])
	if err != nil {
		return errors.Wrap(err, "neighbor UDP address")
	}
	if _, ok := cfg.Interface(fields[5]); !ok {
		return errors.Errorf("neighbor on unknown interface %q", fields[5])
	}

	cfg.Neighbors = append(cfg.Neighbors, NeighborConfig{
		DestAddr:      addr,
		UDPAddr:       udp,
		InterfaceName: fields[5],
	})
	return nil
}

func (cfg *IPConfig) parseRouting(fields []string) error {
	if len(fields) != 2 {
		return errors.New("usage: routing static|none")
	}
	switch fields[1] {
	case "static":
		cfg.RoutingMode = RoutingTypeStatic
	case "none":
		cfg.RoutingMode = RoutingTypeNone
	default:
		return errors.Errorf("unknown routing mode %q", fields[1])
	}
	return nil
}

// route <prefix> via <next-hop-ip | ifname>
func (cfg *IPConfig) parseRoute(fields []string) error {
	if len(fields) != 4 || fields[2] != "via" {
		return errors.New("usage: route <prefix> via <next-hop|ifname>")
	}

	prefix, err := netip.ParsePrefix(fields[1])
	if err != nil {
		return errors.Wrap(err, "route prefix")
	}

	route := StaticRoute{Prefix: prefix.Masked()}
	if nextHop, err := netip.ParseAddr(fields[3]); err == nil {
		route.NextHop = nextHop
	} else {
		route.InterfaceName = fields[3]
	}
	cfg.StaticRoutes = append(cfg.StaticRoutes, route)
	return nil
}

// resolveRoutes fills in the outgoing interface of every route.
func (cfg *IPConfig) resolveRoutes() error {
	for i := range cfg.StaticRoutes {
		r := &cfg.StaticRoutes[i]
		if !r.NextHop.IsValid() {
			if _, ok := cfg.Interface(r.InterfaceName); !ok {
				return errors.Errorf("route %s via unknown interface %q", r.Prefix, r.InterfaceName)
			}
			continue
		}

		name, ok := cfg.InterfaceFor(r.NextHop)
		if !ok {
			return errors.Errorf("route %s: next hop %s is not on any interface", r.Prefix, r.NextHop)
		}
		r.InterfaceName = name
	}
	return nil
}

func (cfg *IPConfig) Interface(name string) (InterfaceConfig, bool) {
	for _, iface := range cfg.Interfaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return InterfaceConfig{}, false
}

// InterfaceFor returns the name of the interface whose network contains addr.
func (cfg *IPConfig) InterfaceFor(addr netip.Addr) (string, bool) {
	for _, iface := range cfg.Interfaces {
		if iface.AssignedPrefix.Contains(addr) {
			return iface.Name, true
		}
	}
	return "", false
}

// NeighborsOn lists the UDP addresses of every neighbor on the named interface.
func (cfg *IPConfig) NeighborsOn(name string) []netip.AddrPort {
	var out []netip.AddrPort
	for _, n := range cfg.Neighbors {
		if n.InterfaceName == name {
			out = append(out, n.UDPAddr)
		}
	}
	return out
}

func parseUint(fields []string, out *uint64) error {
	if len(fields) != 2 {
		return errors.Errorf("usage: %s <value>", fields[0])
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return errors.Wrap(err, fields[0])
	}
	*out = v
	return nil
}

// defaultMAC derives a locally administered address from an IPv4 address.
func defaultMAC(addr netip.Addr) [6]byte {
	a := addr.As4()
	return [6]byte{0x02, 0x00, a[0], a[1], a[2], a[3]}
}
