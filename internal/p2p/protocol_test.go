package p2p

import (
	"context"
	"testing"
	"time"

	"shard/internal/config"
	"shard/internal/sss"
	"shard/internal/wire"

	"github.com/libp2p/go-libp2p/core/peer"
)

func newTestHostPair(t *testing.T) (*Host, *Host) {
	t.Helper()

	cfg := config.P2PConfig{
		Enabled:         true,
		ListenAddresses: []string{"/ip4/127.0.0.1/tcp/0"},
		ConnManager: config.ConnManagerConfig{
			LowWatermark:  10,
			HighWatermark: 40,
			GracePeriod:   time.Second,
		},
	}

	ctx := context.Background()
	a, err := NewHost(ctx, cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewHost(a) returned error: %v", err)
	}
	b, err := NewHost(ctx, cfg, t.TempDir())
	if err != nil {
		a.Close()
		t.Fatalf("NewHost(b) returned error: %v", err)
	}

	bInfo := peer.AddrInfo{ID: b.PeerID(), Addrs: b.ListenAddrs()}
	if err := a.Connect(ctx, bInfo); err != nil {
		a.Close()
		b.Close()
		t.Fatalf("Connect returned error: %v", err)
	}

	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestProtocolGetShareRoundTrip(t *testing.T) {
	a, b := newTestHostPair(t)

	want := sss.Share{X: 3, Y: []byte{9, 8, 7}}

	serverHandler := NewProtocolHandler(b.Host)
	serverHandler.SetGetShareHandler(func(ctx context.Context, remote peer.ID, req wire.GetShareRequest) (wire.GetShareResponse, error) {
		if req.Key != "k1" {
			return wire.GetShareResponse{Success: false}, nil
		}
		return wire.GetShareResponse{
			Share:   wire.ShareTuple{X: want.X, Y: want.Y},
			Success: true,
		}, nil
	})
	defer serverHandler.Close()

	client := NewProtocolClient(a.Host)
	got, ok, err := client.RequestShare(context.Background(), b.PeerID(), "k1")
	if err != nil {
		t.Fatalf("RequestShare returned error: %v", err)
	}
	if !ok {
		t.Fatal("RequestShare returned success=false")
	}
	if got.X != want.X || string(got.Y) != string(want.Y) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestProtocolRegisterShareRoundTrip(t *testing.T) {
	a, b := newTestHostPair(t)

	var gotKey string
	var gotShare sss.Share

	serverHandler := NewProtocolHandler(b.Host)
	serverHandler.SetRegisterShareHandler(func(ctx context.Context, remote peer.ID, req wire.RegisterShareRequest) (wire.RegisterShareResponse, error) {
		gotKey = req.Key
		gotShare = req.ShareValue()
		return wire.RegisterShareResponse{Success: true}, nil
	})
	defer serverHandler.Close()

	client := NewProtocolClient(a.Host)
	ok, err := client.RequestRegisterShare(context.Background(), b.PeerID(), "k2", sss.Share{X: 1, Y: []byte{1, 2}}, 2, 3)
	if err != nil {
		t.Fatalf("RequestRegisterShare returned error: %v", err)
	}
	if !ok {
		t.Fatal("RequestRegisterShare returned success=false")
	}
	if gotKey != "k2" || gotShare.X != 1 || string(gotShare.Y) != string([]byte{1, 2}) {
		t.Fatalf("server observed key=%q share=%+v", gotKey, gotShare)
	}
}

func TestProtocolRefreshShareRoundTrip(t *testing.T) {
	a, b := newTestHostPair(t)

	key, err := sss.GenerateRefreshKey(3, 4)
	if err != nil {
		t.Fatalf("GenerateRefreshKey returned error: %v", err)
	}

	var gotLen int
	serverHandler := NewProtocolHandler(b.Host)
	serverHandler.SetRefreshShareHandler(func(ctx context.Context, remote peer.ID, req wire.RefreshShareRequest) (wire.RefreshShareResponse, error) {
		gotLen = len(req.RefreshKeyValue())
		return wire.RefreshShareResponse{Success: true}, nil
	})
	defer serverHandler.Close()

	client := NewProtocolClient(a.Host)
	ok, err := client.RequestRefreshShare(context.Background(), b.PeerID(), "k3", key)
	if err != nil {
		t.Fatalf("RequestRefreshShare returned error: %v", err)
	}
	if !ok {
		t.Fatal("RequestRefreshShare returned success=false")
	}
	if gotLen != len(key) {
		t.Fatalf("server observed refresh key of length %d, want %d", gotLen, len(key))
	}
}

func TestProtocolGetShareWithNoHandlerReturnsUnsuccessful(t *testing.T) {
	a, b := newTestHostPair(t)

	serverHandler := NewProtocolHandler(b.Host)
	defer serverHandler.Close()

	client := NewProtocolClient(a.Host)
	_, ok, err := client.RequestShare(context.Background(), b.PeerID(), "missing")
	if err != nil {
		t.Fatalf("RequestShare returned error: %v", err)
	}
	if ok {
		t.Fatal("expected success=false when no handler is registered")
	}
}
