package wire

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"shard/internal/polynomial"
	"shard/internal/sss"
)

func TestGetShareRequestRoundTrip(t *testing.T) {
	req := NewGetShareRequest("share_id", []byte{1, 2, 3}, []byte{4, 5, 6})

	encoded, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest returned error: %v", err)
	}

	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest returned error: %v", err)
	}

	kind, err := decoded.Kind()
	if err != nil || kind != "get_share" {
		t.Fatalf("Kind() = %q, %v, want get_share, nil", kind, err)
	}
	if decoded.GetShare.Key != "share_id" {
		t.Fatalf("Key = %q, want share_id", decoded.GetShare.Key)
	}
	if !bytes.Equal(decoded.GetShare.Peer, []byte{1, 2, 3}) {
		t.Fatalf("Peer = %v, want [1 2 3]", decoded.GetShare.Peer)
	}
}

func TestGetShareResponseRoundTrip(t *testing.T) {
	resp := Response{GetShare: &GetShareResponse{
		Share:   ShareTuple{X: 1, Y: []byte{1, 2, 3, 4}},
		Success: true,
	}}

	encoded, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse returned error: %v", err)
	}
	decoded, err := DecodeResponse(encoded)
	if err != nil {
		t.Fatalf("DecodeResponse returned error: %v", err)
	}
	if decoded.GetShare == nil || !decoded.GetShare.Success {
		t.Fatalf("decoded response = %+v, want success GetShare", decoded)
	}
	got := decoded.GetShare.ShareValue()
	if got.X != 1 || !bytes.Equal(got.Y, []byte{1, 2, 3, 4}) {
		t.Fatalf("ShareValue() = %+v", got)
	}
}

func TestRegisterShareRequestRoundTrip(t *testing.T) {
	req := NewRegisterShareRequest("unique_id", sss.Share{X: 1, Y: []byte{1, 2, 3, 4}}, []byte{4, 5, 6}, []byte{7, 8, 9}, 3, 5)

	encoded, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest returned error: %v", err)
	}
	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest returned error: %v", err)
	}
	if decoded.RegisterShare == nil {
		t.Fatalf("decoded request has no RegisterShare variant: %+v", decoded)
	}
	got := decoded.RegisterShare.ShareValue()
	if got.X != 1 || !bytes.Equal(got.Y, []byte{1, 2, 3, 4}) {
		t.Fatalf("ShareValue() = %+v", got)
	}
	if decoded.RegisterShare.Threshold != 3 || decoded.RegisterShare.TotalShares != 5 {
		t.Fatalf("Threshold/TotalShares = %d/%d, want 3/5", decoded.RegisterShare.Threshold, decoded.RegisterShare.TotalShares)
	}
}

func TestRefreshShareRequestRoundTrip(t *testing.T) {
	p1, err := polynomial.New(2, 5)
	if err != nil {
		t.Fatalf("polynomial.New returned error: %v", err)
	}
	p2, err := polynomial.New(2, 9)
	if err != nil {
		t.Fatalf("polynomial.New returned error: %v", err)
	}
	key := sss.RefreshKey{p1, p2}

	req := NewRefreshShareRequest("share_key", key, []byte{1, 2, 3}, []byte{4, 5, 6})

	encoded, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest returned error: %v", err)
	}
	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest returned error: %v", err)
	}
	if decoded.RefreshShare == nil {
		t.Fatalf("decoded request has no RefreshShare variant: %+v", decoded)
	}

	got := decoded.RefreshShare.RefreshKeyValue()
	if len(got) != len(key) {
		t.Fatalf("len(RefreshKeyValue()) = %d, want %d", len(got), len(key))
	}
	for i := range key {
		if !bytes.Equal(got[i].Bytes(), key[i].Bytes()) {
			t.Fatalf("polynomial %d = %v, want %v", i, got[i].Bytes(), key[i].Bytes())
		}
	}
}

func TestRequestWithNoVariantFailsToEncode(t *testing.T) {
	if _, err := EncodeRequest(Request{}); err == nil {
		t.Fatal("expected error encoding a Request with no populated variant")
	}
}

func TestDecodeRequestRejectsEmptyVariant(t *testing.T) {
	encoded, err := cbor.Marshal(Request{})
	if err != nil {
		t.Fatalf("cbor.Marshal returned error: %v", err)
	}
	if _, err := DecodeRequest(encoded); err == nil {
		t.Fatal("expected error decoding a Request with no populated variant")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	req := NewGetShareRequest("k", []byte{1}, []byte{2})

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest returned error: %v", err)
	}

	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest returned error: %v", err)
	}
	if got.GetShare.Key != "k" {
		t.Fatalf("Key = %q, want k", got.GetShare.Key)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF}) // huge bogus length prefix
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversized length prefix")
	}
}
