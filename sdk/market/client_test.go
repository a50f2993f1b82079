package market

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	native "ominis/native/market"
)

func TestCommitHashHexMatchesProtocolDigest(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	want := native.CommitDigest("x^2", salt)
	if got := CommitHashHex("x^2", salt); got != hex.EncodeToString(want[:]) {
		t.Fatalf("commit hash = %s", got)
	}
	fingerprint := native.ProblemFingerprint("d/dx x^2")
	if got := ProblemHashHex("d/dx x^2"); got != hex.EncodeToString(fingerprint[:]) {
		t.Fatalf("problem hash = %s", got)
	}
}

func TestNewSaltIsRandom(t *testing.T) {
	a, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	b, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if a == b {
		t.Fatalf("two salts collided")
	}
}

func TestClientCallShape(t *testing.T) {
	var gotMethod string
	var gotAuth string
	var gotParams map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			JSONRPC string           `json:"jsonrpc"`
			Method  string           `json:"method"`
			Params  []map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotMethod = req.Method
		if len(req.Params) == 1 {
			gotParams = req.Params[0]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"id": 7, "issuer": "0x11", "status": "ACCEPTED", "reward": "490000",
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithVerifierToken("tok"))
	order, err := client.AcceptOrder(context.Background(), 7, "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("AcceptOrder: %v", err)
	}
	if gotMethod != "market_accept" {
		t.Fatalf("method = %s", gotMethod)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotParams["orderId"].(float64) != 7 {
		t.Fatalf("params = %v", gotParams)
	}
	if order.ID != 7 || order.Status != "ACCEPTED" {
		t.Fatalf("order = %+v", order)
	}
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32033, "message": "challenge window still open"},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	_, err := client.ClaimReward(context.Background(), 1, "0x2222222222222222222222222222222222222222")
	if err == nil {
		t.Fatalf("expected error")
	}
	rpcErr, ok := err.(*rpcError)
	if !ok || rpcErr.Code != -32033 {
		t.Fatalf("error = %v", err)
	}
}
