package cmd

import (
	"context"
	"fmt"

	"shard/internal/p2p"
	shardErrors "shard/internal/shardcli/errors"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// session is a short-lived network handle for the one-shot client
// commands (split/combine/ls/refresh): a host plus discovery, connected
// to the network just long enough to make a handful of requests.
type session struct {
	host      *p2p.Host
	discovery *p2p.Discovery
	client    *p2p.ProtocolClient
}

// openSession brings up a libp2p host and its discovery mechanisms
// (mDNS, bootstrap, DHT) and, if --peer was given, dials it directly so
// the DHT has at least one route into the rest of the network.
func openSession(ctx context.Context) (*session, error) {
	host, err := p2p.NewHost(ctx, cfg.P2P, configDir)
	if err != nil {
		return nil, shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to start libp2p host")
	}

	discovery, err := p2p.NewDiscovery(host.Host, cfg.P2P, configDir, log)
	if err != nil {
		host.Close()
		return nil, shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to start discovery")
	}

	if err := discovery.Start(ctx); err != nil {
		discovery.Stop()
		host.Close()
		return nil, shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to bootstrap discovery")
	}

	s := &session{
		host:      host,
		discovery: discovery,
		client:    p2p.NewProtocolClient(host.Host),
	}

	if peerAddr != "" {
		info, err := addrInfoFromString(peerAddr)
		if err != nil {
			s.Close()
			return nil, shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "invalid --peer address")
		}
		if err := host.Connect(ctx, *info); err != nil {
			s.Close()
			return nil, shardErrors.Wrap(err, shardErrors.CodeTransportFailure, fmt.Sprintf("failed to dial %s", info.ID))
		}
	}

	return s, nil
}

// dht returns the session's DHT, which is nil if content routing is
// disabled in configuration.
func (s *session) dht() *p2p.DHT {
	return s.discovery.DHT()
}

// findProviders looks up providers for key, failing with a
// TransportFailure if the DHT isn't available at all.
func (s *session) findProviders(ctx context.Context, key string) ([]peer.AddrInfo, error) {
	d := s.dht()
	if d == nil {
		return nil, shardErrors.New(shardErrors.CodeTransportFailure, "DHT is disabled, cannot discover providers")
	}
	providers, err := d.FindProviders(ctx, key)
	if err != nil {
		return nil, shardErrors.Wrap(err, shardErrors.CodeTransportFailure, fmt.Sprintf("failed to find providers for %q", key))
	}
	s.discovery.NoteShareProviders(providers)
	return providers, nil
}

// Close tears the session down in reverse order of construction.
func (s *session) Close() {
	if s.discovery != nil {
		s.discovery.Stop()
	}
	if s.host != nil {
		s.host.Close()
	}
}

// addrInfoFromString parses a full multiaddr (including /p2p/<id>) into
// a peer.AddrInfo, the form host.Connect and the bootstrap peer list
// both expect.
func addrInfoFromString(addr string) (*peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing multiaddr %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return nil, fmt.Errorf("extracting peer info from %q: %w", addr, err)
	}
	return info, nil
}
