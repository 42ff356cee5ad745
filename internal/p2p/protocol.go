package p2p

import (
	"context"
	"sync"
	"time"

	"shard/internal/wire"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolShare is the stream protocol ID share requests travel over.
const ProtocolShare protocol.ID = "/shard/share/1.0.0"

// SupportedProtocols returns all protocol versions this node speaks.
func SupportedProtocols() []protocol.ID {
	return []protocol.ID{ProtocolShare}
}

// GetShareHandler answers a GetShareRequest from remotePeer.
type GetShareHandler func(ctx context.Context, remotePeer peer.ID, req wire.GetShareRequest) (wire.GetShareResponse, error)

// RegisterShareHandler answers a RegisterShareRequest from remotePeer.
type RegisterShareHandler func(ctx context.Context, remotePeer peer.ID, req wire.RegisterShareRequest) (wire.RegisterShareResponse, error)

// RefreshShareHandler answers a RefreshShareRequest from remotePeer.
type RefreshShareHandler func(ctx context.Context, remotePeer peer.ID, req wire.RefreshShareRequest) (wire.RefreshShareResponse, error)

// ProtocolHandler dispatches incoming share-protocol streams to the
// provider's request handlers. The handlers themselves own authorization
// and persistence; this type only owns stream framing and dispatch.
type ProtocolHandler struct {
	host host.Host

	mu             sync.RWMutex
	onGetShare     GetShareHandler
	onRegister     RegisterShareHandler
	onRefresh      RefreshShareHandler
	requestTimeout time.Duration
}

// NewProtocolHandler registers a stream handler for ProtocolShare on h.
func NewProtocolHandler(h host.Host) *ProtocolHandler {
	ph := &ProtocolHandler{
		host:           h,
		requestTimeout: 30 * time.Second,
	}
	h.SetStreamHandler(ProtocolShare, ph.handleStream)
	return ph
}

// SetGetShareHandler sets the callback invoked for GetShare requests.
func (ph *ProtocolHandler) SetGetShareHandler(fn GetShareHandler) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.onGetShare = fn
}

// SetRegisterShareHandler sets the callback invoked for RegisterShare requests.
func (ph *ProtocolHandler) SetRegisterShareHandler(fn RegisterShareHandler) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.onRegister = fn
}

// SetRefreshShareHandler sets the callback invoked for RefreshShare requests.
func (ph *ProtocolHandler) SetRefreshShareHandler(fn RefreshShareHandler) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.onRefresh = fn
}

// Close removes the stream handler.
func (ph *ProtocolHandler) Close() {
	ph.host.RemoveStreamHandler(ProtocolShare)
}

func (ph *ProtocolHandler) handleStream(s network.Stream) {
	defer s.Close()

	req, err := wire.ReadRequest(s)
	if err != nil {
		getLogger("protocol").Debug("failed to read request", "error", err, "peer", s.Conn().RemotePeer())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ph.requestTimeout)
	defer cancel()

	remotePeer := s.Conn().RemotePeer()
	resp, err := ph.dispatch(ctx, remotePeer, req)
	if err != nil {
		getLogger("protocol").Debug("request handler returned error", "error", err, "peer", remotePeer)
		return
	}

	if err := wire.WriteResponse(s, resp); err != nil {
		getLogger("protocol").Debug("failed to write response", "error", err, "peer", remotePeer)
	}
}

func (ph *ProtocolHandler) dispatch(ctx context.Context, remotePeer peer.ID, req wire.Request) (wire.Response, error) {
	ph.mu.RLock()
	onGetShare, onRegister, onRefresh := ph.onGetShare, ph.onRegister, ph.onRefresh
	ph.mu.RUnlock()

	switch {
	case req.GetShare != nil:
		if onGetShare == nil {
			return wire.Response{GetShare: &wire.GetShareResponse{Success: false}}, nil
		}
		resp, err := onGetShare(ctx, remotePeer, *req.GetShare)
		if err != nil {
			return wire.Response{}, err
		}
		return wire.Response{GetShare: &resp}, nil

	case req.RegisterShare != nil:
		if onRegister == nil {
			return wire.Response{RegisterShare: &wire.RegisterShareResponse{Success: false}}, nil
		}
		resp, err := onRegister(ctx, remotePeer, *req.RegisterShare)
		if err != nil {
			return wire.Response{}, err
		}
		return wire.Response{RegisterShare: &resp}, nil

	case req.RefreshShare != nil:
		if onRefresh == nil {
			return wire.Response{RefreshShare: &wire.RefreshShareResponse{Success: false}}, nil
		}
		resp, err := onRefresh(ctx, remotePeer, *req.RefreshShare)
		if err != nil {
			return wire.Response{}, err
		}
		return wire.Response{RefreshShare: &resp}, nil

	default:
		kind, err := req.Kind()
		_ = kind
		return wire.Response{}, err
	}
}
