package p2p

import (
	"context"
	"fmt"
	"time"

	"shard/internal/sss"
	"shard/internal/wire"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ProtocolClient makes share-protocol requests to other peers.
type ProtocolClient struct {
	host    host.Host
	timeout time.Duration
}

// NewProtocolClient creates a new protocol client.
func NewProtocolClient(h host.Host) *ProtocolClient {
	return &ProtocolClient{
		host:    h,
		timeout: 30 * time.Second,
	}
}

// SetTimeout sets the request timeout.
func (pc *ProtocolClient) SetTimeout(timeout time.Duration) {
	pc.timeout = timeout
}

// sendRequest opens a stream to remotePeer, writes req, and returns the
// decoded response.
func (pc *ProtocolClient) sendRequest(ctx context.Context, remotePeer peer.ID, req wire.Request) (wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	s, err := pc.host.NewStream(ctx, remotePeer, ProtocolShare)
	if err != nil {
		return wire.Response{}, fmt.Errorf("failed to open stream to %s: %w", remotePeer, err)
	}
	defer s.Close()

	if err := wire.WriteRequest(s, req); err != nil {
		return wire.Response{}, fmt.Errorf("writing request to %s: %w", remotePeer, err)
	}

	resp, err := wire.ReadResponse(s)
	if err != nil {
		return wire.Response{}, fmt.Errorf("reading response from %s: %w", remotePeer, err)
	}
	return resp, nil
}

// RequestShare asks remotePeer for its share of key.
func (pc *ProtocolClient) RequestShare(ctx context.Context, remotePeer peer.ID, key string) (sss.Share, bool, error) {
	req := wire.NewGetShareRequest(key, []byte(remotePeer), []byte(pc.host.ID()))

	resp, err := pc.sendRequest(ctx, remotePeer, req)
	if err != nil {
		return sss.Share{}, false, err
	}
	if resp.GetShare == nil {
		return sss.Share{}, false, fmt.Errorf("peer %s returned a response with no GetShare payload", remotePeer)
	}
	return resp.GetShare.ShareValue(), resp.GetShare.Success, nil
}

// RequestRegisterShare asks remotePeer to adopt share under key, as part
// of a split with the given threshold and totalShares.
func (pc *ProtocolClient) RequestRegisterShare(ctx context.Context, remotePeer peer.ID, key string, share sss.Share, threshold, totalShares int) (bool, error) {
	req := wire.NewRegisterShareRequest(key, share, []byte(remotePeer), []byte(pc.host.ID()), threshold, totalShares)

	resp, err := pc.sendRequest(ctx, remotePeer, req)
	if err != nil {
		return false, err
	}
	if resp.RegisterShare == nil {
		return false, fmt.Errorf("peer %s returned a response with no RegisterShare payload", remotePeer)
	}
	return resp.RegisterShare.Success, nil
}

// RequestRefreshShare asks remotePeer to blind its stored share for key
// with refreshKey. Every peer in a refresh round must be sent the exact
// same refreshKey instance or reconstruction will silently desynchronize.
func (pc *ProtocolClient) RequestRefreshShare(ctx context.Context, remotePeer peer.ID, key string, refreshKey sss.RefreshKey) (bool, error) {
	req := wire.NewRefreshShareRequest(key, refreshKey, []byte(remotePeer), []byte(pc.host.ID()))

	resp, err := pc.sendRequest(ctx, remotePeer, req)
	if err != nil {
		return false, err
	}
	if resp.RefreshShare == nil {
		return false, fmt.Errorf("peer %s returned a response with no RefreshShare payload", remotePeer)
	}
	return resp.RefreshShare.Success, nil
}
