package ipstack

import (
	"net/netip"

	"ip-tcp-in-peace/pkg/lnxconfig"
)

// interfaceAdder is satisfied by both IPStack and Router.
type interfaceAdder interface {
	AddInterface(iface *NetworkInterface) int
}

// initInterfaces opens one UDP link per configured interface and attaches a
// NetworkInterface for it to node.
func initInterfaces(cfg *lnxconfig.IPConfig, node interfaceAdder) ([]*UDPLink, map[string]int, error) {
	arpCfg := ARPConfig{
		CacheTTL:        cfg.ARPCacheTTL,
		RequestInterval: cfg.ARPRequestInterval,
	}

	links := make([]*UDPLink, 0, len(cfg.Interfaces))
	indices := make(map[string]int)
	for _, ic := range cfg.Interfaces {
		link, err := NewUDPLink(ic.Name, ic.UDPAddr, cfg.NeighborsOn(ic.Name))
		if err != nil {
			for _, l := range links {
				l.Close()
			}
			return nil, nil, err
		}
		links = append(links, link)

		iface := NewNetworkInterface(ic.Name, link, EthernetAddress(ic.MAC), ic.AssignedIP, arpCfg)
		indices[ic.Name] = node.AddInterface(iface)
	}
	return links, indices, nil
}

// configuredRoutes yields the connected routes followed by the static ones.
func configuredRoutes(cfg *lnxconfig.IPConfig, indices map[string]int, add func(netip.Prefix, netip.Addr, int)) {
	for _, ic := range cfg.Interfaces {
		add(ic.AssignedPrefix, netip.Addr{}, indices[ic.Name])
	}
	if cfg.RoutingMode != lnxconfig.RoutingTypeStatic {
		return
	}
	for _, r := range cfg.StaticRoutes {
		add(r.Prefix, r.NextHop, indices[r.InterfaceName])
	}
}

// InitHost builds a host network layer from cfg.
func InitHost(cfg *lnxconfig.IPConfig) (*IPStack, []*UDPLink, error) {
	stack := NewIPStack()
	links, indices, err := initInterfaces(cfg, stack)
	if err != nil {
		return nil, nil, err
	}
	configuredRoutes(cfg, indices, stack.ForwardingTable.AddRoute)
	return stack, links, nil
}

// InitRouter builds a router from cfg.
func InitRouter(cfg *lnxconfig.IPConfig) (*Router, []*UDPLink, error) {
	router := NewRouter()
	links, indices, err := initInterfaces(cfg, router)
	if err != nil {
		return nil, nil, err
	}
	configuredRoutes(cfg, indices, router.AddRoute)
	return router, links, nil
}
