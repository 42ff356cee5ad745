// Package provider implements the share-holding side of the network:
// answering GetShare/RegisterShare/RefreshShare requests from other
// peers, enforcing that only a share's owner can read or rotate it, and
// running the proactive refresh scheduler.
package provider

import (
	"context"
	"fmt"
	"time"

	"shard/internal/logger"
	"shard/internal/p2p"
	"shard/internal/sss"
	"shard/internal/store"
	"shard/internal/wire"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Provider answers share requests on behalf of a single node and keeps
// its ShareStore authoritative for every key it accepted.
type Provider struct {
	store  store.ShareStore
	client *p2p.ProtocolClient
	dht    *p2p.DHT
	selfID peer.ID
	audit  *logger.AuditLogger
	log    *logger.Logger
}

// New builds a Provider. dht may be nil when content routing is disabled;
// the provider then serves requests it is dialed directly for but cannot
// announce itself or discover co-providers for a refresh round.
func New(st store.ShareStore, client *p2p.ProtocolClient, dht *p2p.DHT, selfID peer.ID, audit *logger.AuditLogger, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Default()
	}
	return &Provider{store: st, client: client, dht: dht, selfID: selfID, audit: audit, log: log.With("component", "provider")}
}

// CheckOwner reports whether sender is the recorded owner of entry.
func CheckOwner(entry store.ShareEntry, sender peer.ID) bool {
	return entry.Owner == sender
}

// RegisterStreamHandlers wires this provider's handlers into h so it
// answers share requests arriving over the network.
func (p *Provider) RegisterStreamHandlers(h *p2p.ProtocolHandler) {
	h.SetGetShareHandler(p.HandleGetShare)
	h.SetRegisterShareHandler(p.HandleRegisterShare)
	h.SetRefreshShareHandler(p.HandleRefreshShare)
}

// HandleGetShare answers a remote GetShare request, refusing to return a
// share to anyone but its recorded owner.
func (p *Provider) HandleGetShare(ctx context.Context, remote peer.ID, req wire.GetShareRequest) (wire.GetShareResponse, error) {
	entry, err := p.store.Get(ctx, req.Key)
	if err != nil {
		p.auditAccess(ctx, remote, req.Key, logger.AuditOutcomeFailure)
		if err == store.ErrNotFound {
			return wire.GetShareResponse{Success: false}, nil
		}
		return wire.GetShareResponse{}, &StoreFailureError{Op: "get", Err: err}
	}

	if !CheckOwner(entry, remote) {
		p.log.Warn("share not owned by sender", "key", req.Key, "sender", remote, "owner", entry.Owner)
		p.auditAccess(ctx, remote, req.Key, logger.AuditOutcomeDenied)
		return wire.GetShareResponse{Success: false}, nil
	}

	p.auditAccess(ctx, remote, req.Key, logger.AuditOutcomeSuccess)
	return wire.GetShareResponse{
		Share:   wire.ShareTuple{X: entry.Share.X, Y: entry.Share.Y},
		Success: true,
	}, nil
}

// HandleRegisterShare answers a remote RegisterShare request. A key with
// no existing entry is accepted from anyone and its sender recorded as
// owner; a key that already exists may only be overwritten by its owner.
func (p *Provider) HandleRegisterShare(ctx context.Context, remote peer.ID, req wire.RegisterShareRequest) (wire.RegisterShareResponse, error) {
	existing, err := p.store.Get(ctx, req.Key)
	if err != nil && err != store.ErrNotFound {
		return wire.RegisterShareResponse{}, &StoreFailureError{Op: "get", Err: err}
	}

	if err == nil && !CheckOwner(existing, remote) {
		p.log.Warn("share exists, not owned by sender", "key", req.Key, "sender", remote, "owner", existing.Owner)
		p.auditRegister(ctx, remote, req.Key, logger.AuditOutcomeDenied)
		return wire.RegisterShareResponse{Success: false}, nil
	}

	threshold, totalShares := req.Threshold, req.TotalShares

	entry := store.ShareEntry{
		Version:     store.CurrentSchemaVersion,
		Key:         req.Key,
		Share:       req.ShareValue(),
		Owner:       remote,
		Threshold:   threshold,
		TotalShares: totalShares,
		UpdatedAt:   time.Now(),
	}

	if err := p.store.Insert(ctx, entry); err != nil {
		return wire.RegisterShareResponse{}, &StoreFailureError{Op: "insert", Err: err}
	}

	if p.dht != nil {
		if err := p.dht.Provide(ctx, req.Key, true); err != nil {
			p.log.Warn("failed to announce provider record", "key", req.Key, "error", err)
		}
	}

	p.auditRegister(ctx, remote, req.Key, logger.AuditOutcomeSuccess)
	p.log.Info("registered share", "key", req.Key, "owner", remote)
	return wire.RegisterShareResponse{Success: true}, nil
}

// HandleRefreshShare answers a remote RefreshShare request: another
// provider in the same refresh round asking this node to blind its copy
// with the round's shared RefreshKey. The request's sender must match
// the share's recorded owner.
func (p *Provider) HandleRefreshShare(ctx context.Context, remote peer.ID, req wire.RefreshShareRequest) (wire.RefreshShareResponse, error) {
	entry, err := p.store.Get(ctx, req.Key)
	if err != nil {
		if err == store.ErrNotFound {
			return wire.RefreshShareResponse{Success: false}, nil
		}
		return wire.RefreshShareResponse{}, &StoreFailureError{Op: "get", Err: err}
	}

	if !CheckOwner(entry, remote) {
		p.log.Warn("refresh rejected, sender is not owner", "key", req.Key, "sender", remote, "owner", entry.Owner)
		p.auditAccess(ctx, remote, req.Key, logger.AuditOutcomeDenied)
		return wire.RefreshShareResponse{Success: false}, nil
	}

	if err := p.applyRefresh(ctx, &entry, req.RefreshKeyValue()); err != nil {
		return wire.RefreshShareResponse{}, err
	}

	p.auditAccess(ctx, remote, req.Key, logger.AuditOutcomeSuccess)
	return wire.RefreshShareResponse{Success: true}, nil
}

// RefreshShareLocal blinds this node's own stored share for key using
// refreshKey, without an ownership check: a node always trusts its own
// scheduler to rotate shares it already holds. Every other provider in
// the round must receive this identical refreshKey value, never one
// regenerated per peer, or reconstruction silently desynchronizes.
func (p *Provider) RefreshShareLocal(ctx context.Context, key string, refreshKey sss.RefreshKey) (sss.Share, error) {
	entry, err := p.store.Get(ctx, key)
	if err != nil {
		if err == store.ErrNotFound {
			return sss.Share{}, &NotFoundError{Key: key}
		}
		return sss.Share{}, &StoreFailureError{Op: "get", Err: err}
	}

	if err := p.applyRefresh(ctx, &entry, refreshKey); err != nil {
		return sss.Share{}, err
	}
	return entry.Share, nil
}

func (p *Provider) applyRefresh(ctx context.Context, entry *store.ShareEntry, refreshKey sss.RefreshKey) error {
	refreshed, err := sss.RefreshShare(entry.Share, refreshKey)
	if err != nil {
		return fmt.Errorf("refreshing share %q: %w", entry.Key, err)
	}
	entry.Share = refreshed
	entry.UpdatedAt = time.Now()

	if err := p.store.Update(ctx, *entry); err != nil {
		return &StoreFailureError{Op: "update", Err: err}
	}
	return nil
}

// GetShareLocal retrieves this node's own stored share for key, for use
// by local tooling (the CLI's ls/combine commands) rather than the
// network protocol.
func (p *Provider) GetShareLocal(ctx context.Context, key string) (store.ShareEntry, error) {
	entry, err := p.store.Get(ctx, key)
	if err == store.ErrNotFound {
		return store.ShareEntry{}, &NotFoundError{Key: key}
	}
	if err != nil {
		return store.ShareEntry{}, &StoreFailureError{Op: "get", Err: err}
	}
	return entry, nil
}

// RegisterShareLocal stores a share this node generated for itself
// (split's own share, or a share assigned to it out of band), recording
// it as owned by selfID.
func (p *Provider) RegisterShareLocal(ctx context.Context, key string, share sss.Share, threshold, totalShares int) error {
	entry := store.ShareEntry{
		Version:     store.CurrentSchemaVersion,
		Key:         key,
		Share:       share,
		Owner:       p.selfID,
		Threshold:   threshold,
		TotalShares: totalShares,
		UpdatedAt:   time.Now(),
	}
	if err := p.store.Insert(ctx, entry); err != nil {
		return &StoreFailureError{Op: "insert", Err: err}
	}
	if p.dht != nil {
		if err := p.dht.Provide(ctx, key, true); err != nil {
			p.log.Warn("failed to announce provider record", "key", key, "error", err)
		}
	}
	return nil
}

func (p *Provider) auditAccess(ctx context.Context, remote peer.ID, key string, outcome logger.AuditOutcome) {
	p.audit.Log(ctx, logger.AuditEvent{
		Action:   logger.AuditActionAccess,
		Actor:    remote.String(),
		Resource: key,
		Outcome:  outcome,
	})
}

func (p *Provider) auditRegister(ctx context.Context, remote peer.ID, key string, outcome logger.AuditOutcome) {
	p.audit.Log(ctx, logger.AuditEvent{
		Action:   logger.AuditActionCreate,
		Actor:    remote.String(),
		Resource: key,
		Outcome:  outcome,
	})
}
