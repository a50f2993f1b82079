package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ominis/core/types"
	"ominis/native/market"
)

type orderJSON struct {
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

func marshalOrder(o *market.Order) orderJSON {
	out := orderJSON{
		ID:          o.ID,
		Issuer:      o.Issuer.Hex(),
		ProblemHash: hex.EncodeToString(o.ProblemHash[:]),
		Kind:        o.Kind.String(),
		Tier:        o.Tier.String(),
		Status:      o.Status.String(),
		Reward:      o.Reward.String(),
		CreatedAt:   o.CreatedAt,
		Deadline:    o.Deadline,
		RevealedAt:  o.RevealedAt,
	}
	if !o.Solver.IsZero() {
		out.Solver = o.Solver.Hex()
	}
	return out
}

func decodeParams(req *RPCRequest, v any) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], v)
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return out, fmt.Errorf("invalid hash: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("invalid hash length: %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

var kindNames = map[string]market.ProblemKind{
	"derivative":      market.ProblemDerivative,
	"integral":        market.ProblemIntegral,
	"limit":           market.ProblemLimit,
	"differential_eq": market.ProblemDifferentialEq,
	"series":          market.ProblemSeries,
}

var tierNames = map[string]market.TimeTier{
	"T2min":  market.TierT2min,
	"T5min":  market.TierT5min,
	"T15min": market.TierT15min,
	"T1hour": market.TierT1hour,
}

type postParams struct {
	Issuer      string `json:"issuer"`
	ProblemHash string `json:"problemHash"`
	Kind        string `json:"kind"`
	Tier        string `json:"tier"`
}

func (s *Server) handlePost(w http.ResponseWriter, req *RPCRequest) string {
	var params postParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	issuer, err := types.ParseAddress(params.Issuer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	hash, err := parseHash32(params.ProblemHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	kind, ok := kindNames[strings.TrimSpace(params.Kind)]
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown kind %q", params.Kind), nil)
		return "invalid_params"
	}
	tier, ok := tierNames[strings.TrimSpace(params.Tier)]
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown tier %q", params.Tier), nil)
		return "invalid_params"
	}
	order, err := s.engine.PostOrder(issuer, hash, kind, tier)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type actorParams struct {
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
}

func (s *Server) actorCall(w http.ResponseWriter, req *RPCRequest, call func(uint64, types.Address) (*market.Order, error)) string {
	var params actorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := call(params.OrderID, caller)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

func (s *Server) handleAccept(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.AcceptOrder)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.ClaimReward)
}

func (s *Server) handleClaimTimeout(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.ClaimTimeout)
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) string {
	return s.actorCall(w, req, s.engine.CancelOrder)
}

type commitParams struct {
	OrderID    uint64 `json:"orderId"`
	Caller     string `json:"caller"`
	CommitHash string `json:"commitHash"`
}

func (s *Server) handleCommit(w http.ResponseWriter, req *RPCRequest) string {
	var params commitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	hash, err := parseHash32(params.CommitHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.CommitSolution(params.OrderID, caller, hash)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type revealParams struct {
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
	Payload string `json:"payload"`
	Salt    string `json:"salt"`
}

func (s *Server) handleReveal(w http.ResponseWriter, req *RPCRequest) string {
	var params revealParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	salt, err := parseHash32(params.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.RevealSolution(params.OrderID, caller, params.Payload, salt)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type challengeParams struct {
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, req *RPCRequest) string {
	var params challengeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.SubmitChallenge(params.OrderID, caller, params.Reason)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type resolveParams struct {
	OrderID       uint64 `json:"orderId"`
	Caller        string `json:"caller"`
	ChallengerWon bool   `json:"challengerWon"`
}

func (s *Server) handleResolve(w http.ResponseWriter, req *RPCRequest) string {
	var params resolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.ResolveChallenge(params.OrderID, caller, params.ChallengerWon)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type verifyParams struct {
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
	Correct bool   `json:"correct"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, req *RPCRequest) string {
	var params verifyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.SubmitVerification(params.OrderID, caller, params.Correct, params.Reason)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, marshalOrder(order))
	return "ok"
}

type getParams struct {
	OrderID uint64 `json:"orderId"`
}

type orderDetailJSON struct {
	Order      orderJSON      `json:"order"`
	Commit     *commitJSON    `json:"commit,omitempty"`
	Challenge  *challengeJSON `json:"challenge,omitempty"`
	LockedFund lockedJSON     `json:"escrow"`
}

type commitJSON struct {
	CommitHash  string `json:"commitHash"`
	CommittedAt int64  `json:"committedAt"`
	Revealed    bool   `json:"revealed"`
	RevealedAt  int64  `json:"revealedAt,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

type challengeJSON struct {
	Challenger    string `json:"challenger"`
	Stake         string `json:"stake"`
	RaisedAt      int64  `json:"raisedAt"`
	Reason        string `json:"reason,omitempty"`
	Resolved      bool   `json:"resolved"`
	ChallengerWon bool   `json:"challengerWon"`
}

type lockedJSON struct {
	Reward string `json:"reward"`
	Bond   string `json:"bond"`
	Stake  string `json:"stake"`
}

func (s *Server) handleGet(w http.ResponseWriter, req *RPCRequest) string {
	var params getParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	order, err := s.engine.GetOrder(params.OrderID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	detail := orderDetailJSON{
		Order: marshalOrder(order),
		LockedFund: lockedJSON{
			Reward: s.engine.Ledger().LockedReward(order.ID).String(),
			Bond:   s.engine.Ledger().SolverBond(order.ID).String(),
			Stake:  s.engine.Ledger().ChallengeStake(order.ID).String(),
		},
	}
	if sub, ok := s.engine.GetSubmission(order.ID); ok {
		cj := &commitJSON{
			CommitHash:  hex.EncodeToString(sub.CommitHash[:]),
			CommittedAt: sub.CommittedAt,
			Revealed:    sub.Revealed,
			RevealedAt:  sub.RevealedAt,
		}
		// The payload only becomes public once revealed.
		if sub.Revealed {
			cj.Payload = sub.Payload
		}
		detail.Commit = cj
	}
	if ch, ok := s.engine.GetChallenge(order.ID); ok {
		detail.Challenge = &challengeJSON{
			Challenger:    ch.Challenger.Hex(),
			Stake:         ch.Stake.String(),
			RaisedAt:      ch.RaisedAt,
			Reason:        ch.Reason,
			Resolved:      ch.Resolved,
			ChallengerWon: ch.ChallengerWon,
		}
	}
	writeResult(w, req.ID, detail)
	return "ok"
}

func (s *Server) handleListOpen(w http.ResponseWriter, req *RPCRequest) string {
	orders, err := s.engine.OpenOrders()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, marshalOrder(o))
	}
	writeResult(w, req.ID, out)
	return "ok"
}

type balanceParams struct {
	Address string `json:"address"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) string {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	addr, err := types.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, balanceResult{Address: addr.Hex(), Balance: balance.String()})
	return "ok"
}
