// Package market provides the Go client used by solver bots and issuer
// integrations to drive the settlement JSON-RPC surface.
package market

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	native "ominis/native/market"
)

// Client is a thin JSON-RPC wrapper over the node's market methods.
type Client struct {
	endpoint string
	token    string
	httpc    *http.Client
	nextID   int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithVerifierToken attaches the bearer token required by the privileged
// resolve/verify methods.
func WithVerifierToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient builds a client for the given RPC endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		nextID:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []any{params},
		ID:      c.nextID,
	})
	if err != nil {
		return err
	}
	c.nextID++
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out != nil {
		return json.Unmarshal(decoded.Result, out)
	}
	return nil
}

// Order is the wire representation returned by the node.
type Order struct {
	ID          uint64 `json:"id"`
	Issuer      string `json:"issuer"`
	Solver      string `json:"solver,omitempty"`
	ProblemHash string `json:"problemHash"`
	Kind        string `json:"kind"`
	Tier        string `json:"tier"`
	Status      string `json:"status"`
	Reward      string `json:"reward"`
	CreatedAt   int64  `json:"createdAt"`
	Deadline    int64  `json:"deadline"`
	RevealedAt  int64  `json:"revealedAt,omitempty"`
}

// PostOrder publishes a new problem order.
func (c *Client) PostOrder(ctx context.Context, issuer, problemHash, kind, tier string) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_post", map[string]any{
		"issuer":      issuer,
		"problemHash": problemHash,
		"kind":        kind,
		"tier":        tier,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) actorCall(ctx context.Context, method string, orderID uint64, caller string) (*Order, error) {
	var out Order
	err := c.call(ctx, method, map[string]any{"orderId": orderID, "caller": caller}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptOrder takes an open order as the calling solver.
func (c *Client) AcceptOrder(ctx context.Context, orderID uint64, solver string) (*Order, error) {
	return c.actorCall(ctx, "market_accept", orderID, solver)
}

// CommitSolution publishes the solution digest.
func (c *Client) CommitSolution(ctx context.Context, orderID uint64, solver, commitHash string) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_commit", map[string]any{
		"orderId":    orderID,
		"caller":     solver,
		"commitHash": commitHash,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RevealSolution discloses the payload and salt behind a commit.
func (c *Client) RevealSolution(ctx context.Context, orderID uint64, solver, payload, salt string) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_reveal", map[string]any{
		"orderId": orderID,
		"caller":  solver,
		"payload": payload,
		"salt":    salt,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimReward settles a revealed order in the solver's favour after the
// challenge window.
func (c *Client) ClaimReward(ctx context.Context, orderID uint64, solver string) (*Order, error) {
	return c.actorCall(ctx, "market_claimReward", orderID, solver)
}

// ClaimTimeout reclaims the reward for the issuer after the deadline.
func (c *Client) ClaimTimeout(ctx context.Context, orderID uint64, issuer string) (*Order, error) {
	return c.actorCall(ctx, "market_claimTimeout", orderID, issuer)
}

// CancelOrder withdraws an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID uint64, issuer string) (*Order, error) {
	return c.actorCall(ctx, "market_cancel", orderID, issuer)
}

// SubmitChallenge disputes a revealed solution.
func (c *Client) SubmitChallenge(ctx context.Context, orderID uint64, challenger, reason string) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_challenge", map[string]any{
		"orderId": orderID,
		"caller":  challenger,
		"reason":  reason,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveChallenge submits the privileged dispute verdict.
func (c *Client) ResolveChallenge(ctx context.Context, orderID uint64, verifier string, challengerWon bool) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_resolve", map[string]any{
		"orderId":       orderID,
		"caller":        verifier,
		"challengerWon": challengerWon,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitVerification submits the privileged fast-path verdict.
func (c *Client) SubmitVerification(ctx context.Context, orderID uint64, verifier string, correct bool, reason string) (*Order, error) {
	var out Order
	err := c.call(ctx, "market_verify", map[string]any{
		"orderId": orderID,
		"caller":  verifier,
		"correct": correct,
		"reason":  reason,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOpenOrders lists currently open orders.
func (c *Client) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.call(ctx, "market_listOpen", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceOf reports an identity's payment-token balance.
func (c *Client) BalanceOf(ctx context.Context, address string) (string, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, "market_balanceOf", map[string]any{"address": address}, &out); err != nil {
		return "", err
	}
	return out.Balance, nil
}

// WatchOpenOrders polls the open-order list and sends orders not yet seen.
// The channel closes when the context ends.
func (c *Client) WatchOpenOrders(ctx context.Context, interval time.Duration) <-chan Order {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan Order)
	go func() {
		defer close(out)
		seen := make(map[uint64]struct{})
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orders, err := c.GetOpenOrders(ctx)
				if err != nil {
					continue
				}
				for _, order := range orders {
					if _, dup := seen[order.ID]; dup {
						continue
					}
					seen[order.ID] = struct{}{}
					select {
					case out <- order:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// NewSalt draws a random 32-byte salt for a commit.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, err
	}
	return salt, nil
}

// CommitHashHex computes the hex commitment for a payload and salt using the
// protocol digest.
func CommitHashHex(payload string, salt [32]byte) string {
	digest := native.CommitDigest(payload, salt)
	return fmt.Sprintf("%x", digest[:])
}

// ProblemHashHex computes the hex fingerprint for problem text.
func ProblemHashHex(problem string) string {
	digest := native.ProblemFingerprint(problem)
	return fmt.Sprintf("%x", digest[:])
}
