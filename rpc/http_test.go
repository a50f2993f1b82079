package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"ominis/core/types"
	"ominis/native/market"
	marketstate "ominis/state"
	"ominis/storage"
)

const testSecret = "rpc-test-secret"

func rpcTestAddress(fill byte) string {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr.Hex()
}

type rpcRig struct {
	t      *testing.T
	server *httptest.Server
	now    *int64
}

func newRPCRig(t *testing.T) *rpcRig {
	t.Helper()
	st := marketstate.NewMarketState(storage.NewMemDB())
	for _, fill := range []byte{0x11, 0x22, 0x33} {
		var addr types.Address
		for i := range addr {
			addr[i] = fill
		}
		if err := st.PutAccount(addr, &types.Account{Balance: big.NewInt(10_000_000)}); err != nil {
			t.Fatalf("PutAccount: %v", err)
		}
	}
	var verifier, vault, treasury types.Address
	for i := range verifier {
		verifier[i] = 0x44
		vault[i] = 0xAA
		treasury[i] = 0xFE
	}
	engine, err := market.NewEngine(market.EngineConfig{
		State:    st,
		Pricing:  market.DefaultTierSchedule(),
		Params:   market.DefaultParams(),
		Vault:    vault,
		Treasury: treasury,
		Verifier: verifier,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	srv := NewServer(engine, slog.Default(), ServerConfig{
		VerifierJWTSecret: testSecret,
		RateLimitPerMin:   600_000,
		RateLimitBurst:    10_000,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &rpcRig{t: t, server: ts, now: &now}
}

func (r *rpcRig) call(method string, params map[string]any, token string) *RPCResponse {
	r.t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []any{params},
	})
	if err != nil {
		r.t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, r.server.URL, bytes.NewReader(body))
	if err != nil {
		r.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		r.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		r.t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func (r *rpcRig) mustOrder(resp *RPCResponse) map[string]any {
	r.t.Helper()
	if resp.Error != nil {
		r.t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		r.t.Fatalf("re-marshal result: %v", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		r.t.Fatalf("unmarshal order: %v", err)
	}
	return out
}

func verifierToken(t *testing.T, scope string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "oracle",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRPCLifecycle(t *testing.T) {
	rig := newRPCRig(t)
	issuer := rpcTestAddress(0x11)
	solver := rpcTestAddress(0x22)
	verifier := rpcTestAddress(0x44)

	problemHash := fmt.Sprintf("%x", market.ProblemFingerprint("d/dx x^3"))
	posted := rig.mustOrder(rig.call("market_post", map[string]any{
		"issuer":      issuer,
		"problemHash": problemHash,
		"kind":        "derivative",
		"tier":        "T5min",
	}, ""))
	if posted["status"] != "OPEN" || posted["reward"] != "490000" {
		t.Fatalf("posted = %v", posted)
	}
	orderID := uint64(posted["id"].(float64))

	accepted := rig.mustOrder(rig.call("market_accept", map[string]any{
		"orderId": orderID, "caller": solver,
	}, ""))
	if accepted["status"] != "ACCEPTED" || accepted["solver"] != solver {
		t.Fatalf("accepted = %v", accepted)
	}

	salt := [32]byte{0x5a}
	commitHash := fmt.Sprintf("%x", market.CommitDigest("3x^2", salt))
	committed := rig.mustOrder(rig.call("market_commit", map[string]any{
		"orderId": orderID, "caller": solver, "commitHash": commitHash,
	}, ""))
	if committed["status"] != "COMMITTED" {
		t.Fatalf("committed = %v", committed)
	}

	// The payload is not exposed before reveal.
	detail := rig.mustOrder(rig.call("market_get", map[string]any{"orderId": orderID}, ""))
	commit := detail["commit"].(map[string]any)
	if _, leaked := commit["payload"]; leaked {
		t.Fatalf("payload leaked before reveal: %v", commit)
	}

	*rig.now += market.DefaultParams().MinRevealDelay
	revealed := rig.mustOrder(rig.call("market_reveal", map[string]any{
		"orderId": orderID, "caller": solver,
		"payload": "3x^2", "salt": fmt.Sprintf("%x", salt),
	}, ""))
	if revealed["status"] != "REVEALED" {
		t.Fatalf("revealed = %v", revealed)
	}

	verified := rig.mustOrder(rig.call("market_verify", map[string]any{
		"orderId": orderID, "caller": verifier, "correct": true,
	}, verifierToken(t, "verifier")))
	if verified["status"] != "VERIFIED" {
		t.Fatalf("verified = %v", verified)
	}

	balance := rig.mustOrder(rig.call("market_balanceOf", map[string]any{"address": solver}, ""))
	// 10_000_000 - 245_000 bond + 465_500 net reward + 245_000 bond back.
	if balance["balance"] != "10465500" {
		t.Fatalf("solver balance = %v", balance)
	}
}

func TestRPCPrivilegedMethodsRequireToken(t *testing.T) {
	rig := newRPCRig(t)
	verifier := rpcTestAddress(0x44)
	params := map[string]any{"orderId": uint64(1), "caller": verifier, "correct": true}

	resp := rig.call("market_verify", params, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("missing token: %+v", resp.Error)
	}
	resp = rig.call("market_verify", params, verifierToken(t, "reader"))
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("wrong scope: %+v", resp.Error)
	}
	resp = rig.call("market_resolve", map[string]any{"orderId": uint64(1), "caller": verifier, "challengerWon": true}, "garbage-token")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("garbage token: %+v", resp.Error)
	}
}

func TestRPCErrorMapping(t *testing.T) {
	rig := newRPCRig(t)
	issuer := rpcTestAddress(0x11)

	resp := rig.call("market_noSuchMethod", map[string]any{}, "")
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method: %+v", resp.Error)
	}

	resp = rig.call("market_get", map[string]any{"orderId": uint64(99)}, "")
	if resp.Error == nil || resp.Error.Code != codeMarketNotFound {
		t.Fatalf("missing order: %+v", resp.Error)
	}

	resp = rig.call("market_post", map[string]any{
		"issuer": "zzz", "problemHash": "00", "kind": "derivative", "tier": "T5min",
	}, "")
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("bad address: %+v", resp.Error)
	}

	resp = rig.call("market_post", map[string]any{
		"issuer":      issuer,
		"problemHash": fmt.Sprintf("%x", market.ProblemFingerprint("p")),
		"kind":        "geometry",
		"tier":        "T5min",
	}, "")
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("unknown kind: %+v", resp.Error)
	}

	// Cancel by a stranger maps the authorization category.
	rig.mustOrder(rig.call("market_post", map[string]any{
		"issuer":      issuer,
		"problemHash": fmt.Sprintf("%x", market.ProblemFingerprint("p")),
		"kind":        "derivative",
		"tier":        "T5min",
	}, ""))
	resp = rig.call("market_cancel", map[string]any{"orderId": uint64(1), "caller": rpcTestAddress(0x33)}, "")
	if resp.Error == nil || resp.Error.Code != codeMarketAuthorization {
		t.Fatalf("stranger cancel: %+v", resp.Error)
	}
}

func TestRPCRateLimit(t *testing.T) {
	st := marketstate.NewMarketState(storage.NewMemDB())
	var verifier, vault, treasury types.Address
	for i := range verifier {
		verifier[i] = 0x44
		vault[i] = 0xAA
		treasury[i] = 0xFE
	}
	engine, err := market.NewEngine(market.EngineConfig{
		State:    st,
		Pricing:  market.DefaultTierSchedule(),
		Params:   market.DefaultParams(),
		Vault:    vault,
		Treasury: treasury,
		Verifier: verifier,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	srv := NewServer(engine, slog.Default(), ServerConfig{
		RateLimitPerMin: 0.0001,
		RateLimitBurst:  2,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"market_listOpen","params":[{}]}`)
	var lastCode int
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		lastCode = resp.StatusCode
		resp.Body.Close()
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("third request should be rate limited, got %d", lastCode)
	}
}
