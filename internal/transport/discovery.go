package transport

import "context"

// Endpoint is a peer found by discovery: its advertised instance name (the
// device name), a dialable address, and the peer id carried in TXT records.
type Endpoint struct {
	Instance string
	Addr     string
	PeerID   string
}

// TxtPeerID is the TXT record key carrying the advertiser's peer id, used by
// scanners to filter out their own advertisement.
const TxtPeerID = "peer"

// Discovery advertises the local service and browses for peers on the same
// network.
type Discovery interface {
	// Advertise registers the service instance on the LAN. The returned stop
	// function deregisters it.
	Advertise(instance string, port int, txt map[string]string) (stop func(), err error)

	// Browse streams discovered endpoints to onEndpoint until ctx is
	// cancelled. It returns right after starting the browser; only setup
	// failures are reported.
	Browse(ctx context.Context, onEndpoint func(Endpoint)) error
}
