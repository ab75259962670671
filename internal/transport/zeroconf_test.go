package transport

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_pairsync._tcp", mdnsDomain)
	e.Port = 7777
	return e
}

func TestEndpointFromEntry(t *testing.T) {
	e := entry("office-mac")
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	e.Text = []string{"peer=p1", "junk", "other=x"}

	ep, ok := endpointFromEntry(e)
	require.True(t, ok)
	assert.Equal(t, "office-mac", ep.Instance)
	assert.Equal(t, "192.168.1.20:7777", ep.Addr)
	assert.Equal(t, "p1", ep.PeerID)
}

func TestEndpointFromEntry_IPv6Fallback(t *testing.T) {
	e := entry("office-mac")
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	ep, ok := endpointFromEntry(e)
	require.True(t, ok)
	assert.Equal(t, "[fe80::1]:7777", ep.Addr)
	assert.Empty(t, ep.PeerID)
}

func TestEndpointFromEntry_NoAddress(t *testing.T) {
	_, ok := endpointFromEntry(entry("office-mac"))
	assert.False(t, ok)
}
