package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/ledgerlink/pairsync/internal/logging"
)

const mdnsDomain = "local."

// ZeroconfDiscovery implements Discovery with mDNS (Bonjour-compatible), so
// a device advertised here is visible to peers using the same well-known
// service type.
type ZeroconfDiscovery struct {
	serviceType string
	log         logging.Logger
}

func NewZeroconfDiscovery(serviceType string, log logging.Logger) *ZeroconfDiscovery {
	return &ZeroconfDiscovery{serviceType: serviceType, log: log}
}

func (z *ZeroconfDiscovery) Advertise(instance string, port int, txt map[string]string) (func(), error) {
	records := make([]string, 0, len(txt))
	for k, v := range txt {
		records = append(records, k+"="+v)
	}

	server, err := zeroconf.Register(instance, z.serviceType, mdnsDomain, port, records, nil)
	if err != nil {
		return nil, fmt.Errorf("advertising %s on %s: %w", instance, z.serviceType, err)
	}
	z.log.Info(context.Background(), "advertising service", "instance", instance, "type", z.serviceType, "port", port)
	return server.Shutdown, nil
}

func (z *ZeroconfDiscovery) Browse(ctx context.Context, onEndpoint func(Endpoint)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, z.serviceType, mdnsDomain, entries); err != nil {
		return fmt.Errorf("browsing %s: %w", z.serviceType, err)
	}

	go func() {
		for e := range entries {
			ep, ok := endpointFromEntry(e)
			if !ok {
				continue
			}
			z.log.Debug(ctx, "discovered endpoint", "instance", ep.Instance, "addr", ep.Addr)
			onEndpoint(ep)
		}
	}()
	return nil
}

func endpointFromEntry(e *zeroconf.ServiceEntry) (Endpoint, bool) {
	var ip net.IP
	if len(e.AddrIPv4) > 0 {
		ip = e.AddrIPv4[0]
	} else if len(e.AddrIPv6) > 0 {
		ip = e.AddrIPv6[0]
	} else {
		return Endpoint{}, false
	}

	ep := Endpoint{
		Instance: e.Instance,
		Addr:     net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)),
	}
	for _, record := range e.Text {
		if k, v, ok := strings.Cut(record, "="); ok && k == TxtPeerID {
			ep.PeerID = v
		}
	}
	return ep, true
}
