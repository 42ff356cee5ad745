// Package wire defines the CBOR-encoded request/response envelopes
// exchanged between provider nodes, and the length-prefixed framing used
// to put them on a libp2p stream.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"shard/internal/polynomial"
	"shard/internal/sss"
)

// maxMessageSize bounds a single framed message, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const maxMessageSize = 10 * 1024 * 1024

// ShareTuple is the wire form of a single Shamir share: an x-coordinate
// and its y-value bytes.
type ShareTuple struct {
	X byte   `cbor:"x"`
	Y []byte `cbor:"y"`
}

func shareToWire(s sss.Share) ShareTuple {
	return ShareTuple{X: s.X, Y: s.Y}
}

func shareFromWire(t ShareTuple) sss.Share {
	return sss.Share{X: t.X, Y: t.Y}
}

// refreshKeyToWire flattens a RefreshKey into its raw polynomial
// coefficient rows, the only part of a Polynomial that needs to cross
// the wire.
func refreshKeyToWire(k sss.RefreshKey) [][]byte {
	out := make([][]byte, len(k))
	for i, p := range k {
		out[i] = p.Bytes()
	}
	return out
}

func refreshKeyFromWire(rows [][]byte) sss.RefreshKey {
	out := make(sss.RefreshKey, len(rows))
	for i, row := range rows {
		out[i] = polynomial.FromBytes(row)
	}
	return out
}

// GetShareRequest asks the receiving peer for its share of key, on
// behalf of sender.
type GetShareRequest struct {
	Key    string `cbor:"key"`
	Peer   []byte `cbor:"peer"`
	Sender []byte `cbor:"sender"`
}

// GetShareResponse carries the requested share, or Success=false if the
// peer declined or had nothing under that key.
type GetShareResponse struct {
	Share   ShareTuple `cbor:"share"`
	Success bool       `cbor:"success"`
}

// RegisterShareRequest asks the receiving peer to adopt and persist a
// share under key. Threshold and TotalShares describe the split the
// share belongs to, so the receiving provider can run its own proactive
// refresh rounds without the original splitter's involvement.
type RegisterShareRequest struct {
	Key         string     `cbor:"key"`
	Share       ShareTuple `cbor:"share"`
	Peer        []byte     `cbor:"peer"`
	Sender      []byte     `cbor:"sender"`
	Threshold   int        `cbor:"threshold"`
	TotalShares int        `cbor:"total_shares"`
}

// RegisterShareResponse acknowledges a RegisterShareRequest.
type RegisterShareResponse struct {
	Success bool `cbor:"success"`
}

// RefreshShareRequest asks the receiving peer to blind its stored share
// for key with RefreshKey, in place. Every peer in a refresh round must
// receive the identical RefreshKey or reconstruction breaks.
type RefreshShareRequest struct {
	Key        string   `cbor:"key"`
	RefreshKey [][]byte `cbor:"refresh_key"`
	Peer       []byte   `cbor:"peer"`
	Sender     []byte   `cbor:"sender"`
}

// RefreshShareResponse acknowledges a RefreshShareRequest.
type RefreshShareResponse struct {
	Success bool `cbor:"success"`
}

// Request is a tagged union over the three request kinds. The NewXRequest
// constructors populate exactly one field; Kind, and so EncodeRequest and
// DecodeRequest, rejects a Request with no field populated.
type Request struct {
	GetShare      *GetShareRequest      `cbor:"get_share,omitempty"`
	RegisterShare *RegisterShareRequest `cbor:"register_share,omitempty"`
	RefreshShare  *RefreshShareRequest  `cbor:"refresh_share,omitempty"`
}

// Response is the tagged union counterpart to Request.
type Response struct {
	GetShare      *GetShareResponse      `cbor:"get_share,omitempty"`
	RegisterShare *RegisterShareResponse `cbor:"register_share,omitempty"`
	RefreshShare  *RefreshShareResponse  `cbor:"refresh_share,omitempty"`
}

// NewGetShareRequest builds a Request wrapping a GetShareRequest.
func NewGetShareRequest(key string, peerID, sender []byte) Request {
	return Request{GetShare: &GetShareRequest{Key: key, Peer: peerID, Sender: sender}}
}

// NewRegisterShareRequest builds a Request wrapping a RegisterShareRequest.
func NewRegisterShareRequest(key string, share sss.Share, peerID, sender []byte, threshold, totalShares int) Request {
	return Request{RegisterShare: &RegisterShareRequest{
		Key:         key,
		Share:       shareToWire(share),
		Peer:        peerID,
		Sender:      sender,
		Threshold:   threshold,
		TotalShares: totalShares,
	}}
}

// NewRefreshShareRequest builds a Request wrapping a RefreshShareRequest.
func NewRefreshShareRequest(key string, refreshKey sss.RefreshKey, peerID, sender []byte) Request {
	return Request{RefreshShare: &RefreshShareRequest{
		Key:        key,
		RefreshKey: refreshKeyToWire(refreshKey),
		Peer:       peerID,
		Sender:     sender,
	}}
}

// Kind returns a short label identifying which variant is populated, for
// logging and dispatch.
func (r Request) Kind() (string, error) {
	switch {
	case r.GetShare != nil:
		return "get_share", nil
	case r.RegisterShare != nil:
		return "register_share", nil
	case r.RefreshShare != nil:
		return "refresh_share", nil
	default:
		return "", fmt.Errorf("wire: request has no populated variant")
	}
}

// ShareValue returns the sss.Share carried by a GetShareRequest's response,
// a small convenience so callers don't juggle ShareTuple directly.
func (r GetShareResponse) ShareValue() sss.Share { return shareFromWire(r.Share) }

// RefreshKeyValue decodes the flattened polynomial rows back into a usable
// sss.RefreshKey.
func (r RefreshShareRequest) RefreshKeyValue() sss.RefreshKey {
	return refreshKeyFromWire(r.RefreshKey)
}

// ShareValue decodes the wire tuple on a RegisterShareRequest.
func (r RegisterShareRequest) ShareValue() sss.Share { return shareFromWire(r.Share) }

// EncodeRequest serializes r to CBOR.
func EncodeRequest(r Request) ([]byte, error) {
	if _, err := r.Kind(); err != nil {
		return nil, err
	}
	return cbor.Marshal(r)
}

// DecodeRequest deserializes a CBOR-encoded Request.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("wire: decoding request: %w", err)
	}
	if _, err := r.Kind(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// EncodeResponse serializes r to CBOR.
func EncodeResponse(r Response) ([]byte, error) {
	return cbor.Marshal(r)
}

// DecodeResponse deserializes a CBOR-encoded Response.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("wire: decoding response: %w", err)
	}
	return r, nil
}
