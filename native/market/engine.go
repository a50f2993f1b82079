package market

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"ominis/core/events"
	"ominis/core/types"
)

var (
	errNilState   = errors.New("market engine: state not configured")
	errNilPricing = errors.New("market engine: pricing not configured")
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine is the settlement coordinator: the sole entry point for issuers,
// solvers, challengers and the privileged verifier. Each operation validates
// its guards in a fixed order (existence, role, time, state), then performs
// the escrow movement and status update as one unit under a per-order
// critical section, and emits exactly one event describing the transition.
type Engine struct {
	state    State
	orders   *OrderStore
	commits  *CommitRevealStore
	disputes *DisputeTracker
	ledger   *Ledger
	rail     PaymentRail
	pricing  Pricing
	params   Params
	vault    types.Address
	verifier types.Address
	emitter  events.Emitter
	nowFn    func() int64

	lockMu     sync.Mutex
	orderLocks map[uint64]*sync.Mutex
	postMu     sync.Mutex
}

// EngineConfig carries the wiring for a settlement engine. Params and the
// tier schedule are validated once here; misconfiguration is rejected at
// setup and never at call time.
type EngineConfig struct {
	State    State
	Pricing  Pricing
	Params   Params
	Vault    types.Address
	Treasury types.Address
	Verifier types.Address
}

// NewEngine wires the settlement components over a shared state backend.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.State == nil {
		return nil, errNilState
	}
	if cfg.Pricing == nil {
		return nil, errNilPricing
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if schedule, ok := cfg.Pricing.(TierSchedule); ok {
		if err := schedule.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Vault.IsZero() {
		return nil, errors.New("market engine: vault address not configured")
	}
	if cfg.Treasury.IsZero() {
		return nil, errors.New("market engine: treasury address not configured")
	}
	if cfg.Verifier.IsZero() {
		return nil, errors.New("market engine: verifier address not configured")
	}
	rail := NewAccountRail(cfg.State)
	return &Engine{
		state:      cfg.State,
		orders:     NewOrderStore(cfg.State),
		commits:    NewCommitRevealStore(cfg.State, cfg.Params.MinRevealDelay),
		disputes:   NewDisputeTracker(cfg.State),
		ledger:     NewLedger(cfg.State, rail, cfg.Vault, cfg.Treasury, cfg.Params.FeeBps),
		rail:       rail,
		pricing:    cfg.Pricing,
		params:     cfg.Params,
		vault:      cfg.Vault,
		verifier:   cfg.Verifier,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		orderLocks: make(map[uint64]*sync.Mutex),
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for tests needing
// deterministic timestamps; all window comparisons within one operation read
// the source exactly once.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns the configured protocol parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lockOrder serialises all operations on one order id. The returned func
// releases the critical section; no callback runs while it is held, so an
// operation cannot be re-entered for the same order mid-settlement.
func (e *Engine) lockOrder(id uint64) func() {
	e.lockMu.Lock()
	mu, ok := e.orderLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.orderLocks[id] = mu
	}
	e.lockMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) bpsShare(amount *big.Int, bps uint32) *big.Int {
	share := new(big.Int).Mul(cloneBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return share.Div(share, big.NewInt(bpsDenominator))
}

// PostOrder charges the tier price from the issuer, locks it as the reward
// and creates a new OPEN order with a tier-derived deadline.
func (e *Engine) PostOrder(issuer types.Address, problemHash [32]byte, kind ProblemKind, tier TimeTier) (*Order, error) {
	if issuer.IsZero() {
		return nil, errValidation("empty issuer")
	}
	if problemHash == ([32]byte{}) {
		return nil, errValidation("empty problem fingerprint")
	}
	if !kind.Valid() {
		return nil, errValidation("unknown problem kind %d", kind)
	}
	if !tier.Valid() {
		return nil, errValidation("unknown time tier %d", tier)
	}
	price, err := e.pricing.PriceForTier(tier)
	if err != nil {
		return nil, errValidation("no price for tier %s", tier)
	}
	duration, err := e.pricing.DurationForTier(tier)
	if err != nil {
		return nil, errValidation("no duration for tier %s", tier)
	}

	// Posting assigns a fresh id; serialise against other posts so the
	// charge and the order creation stay one unit.
	e.postMu.Lock()
	defer e.postMu.Unlock()

	// Charge before the order exists so a failed transfer leaves no
	// phantom OPEN order behind.
	if err := e.rail.Transfer(issuer, e.vault, price); err != nil {
		return nil, e.wrapTransfer(err)
	}
	now := e.now()
	order, err := e.orders.Create(issuer, problemHash, kind, tier, price, now, now+int64(duration/time.Second))
	if err != nil {
		return nil, err
	}
	if err := e.ledger.RecordLockedReward(order.ID, issuer, price); err != nil {
		return nil, err
	}
	e.emit(NewPostedEvent(order))
	return order, nil
}

// AcceptOrder assigns the caller as solver, locking their bond.
func (e *Engine) AcceptOrder(orderID uint64, caller types.Address) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, errValidation("empty caller")
	}
	if caller == order.Issuer {
		return nil, errAuthorization("issuer may not accept their own order")
	}
	now := e.now()
	if now >= order.Deadline {
		return nil, errTemporal("order %d deadline passed", orderID)
	}
	if order.Status != StatusOpen {
		return nil, errState("order %d is %s, expected OPEN", orderID, order.Status)
	}

	bond := e.bpsShare(order.Reward, e.params.BondBps)
	if err := e.ledger.LockSolverBond(orderID, caller, bond); err != nil {
		return nil, e.wrapTransfer(err)
	}
	order, err = e.orders.Transition(orderID, StatusOpen, StatusAccepted, func(o *Order) {
		o.Solver = caller
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewAcceptedEvent(order, bond.String()))
	return order, nil
}

// CommitSolution records the solver's solution digest.
func (e *Engine) CommitSolution(orderID uint64, caller types.Address, commitHash [32]byte) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != order.Solver {
		return nil, errAuthorization("order %d: only the solver may commit", orderID)
	}
	now := e.now()
	if now >= order.Deadline {
		return nil, errTemporal("order %d deadline passed", orderID)
	}
	if order.Status != StatusAccepted {
		return nil, errState("order %d is %s, expected ACCEPTED", orderID, order.Status)
	}

	if err := e.commits.Commit(orderID, caller, commitHash, now); err != nil {
		return nil, err
	}
	order, err = e.orders.Transition(orderID, StatusAccepted, StatusCommitted, nil)
	if err != nil {
		return nil, err
	}
	e.emit(NewCommittedEvent(order, commitHash))
	return order, nil
}

// RevealSolution discloses the payload and salt behind the commit. A digest
// mismatch is surfaced as ErrInvalidReveal without any state change; a valid
// reveal starts the challenge window and enqueues a fast-path verification
// request.
func (e *Engine) RevealSolution(orderID uint64, caller types.Address, payload string, salt [32]byte) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != order.Solver {
		return nil, errAuthorization("order %d: only the solver may reveal", orderID)
	}
	if order.Status != StatusCommitted {
		return nil, errState("order %d is %s, expected COMMITTED", orderID, order.Status)
	}

	now := e.now()
	valid, _, err := e.commits.Reveal(orderID, caller, payload, salt, now)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidReveal
	}
	order, err = e.orders.Transition(orderID, StatusCommitted, StatusRevealed, func(o *Order) {
		o.RevealedAt = now
	})
	if err != nil {
		return nil, err
	}
	if err := e.disputes.RequestVerification(orderID, now); err != nil {
		return nil, err
	}
	e.emit(NewRevealedEvent(order, now))
	return order, nil
}

// ClaimReward settles in the solver's favour once the challenge window has
// elapsed without an unresolved challenge.
func (e *Engine) ClaimReward(orderID uint64, caller types.Address) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != order.Solver {
		return nil, errAuthorization("order %d: only the solver may claim", orderID)
	}
	now := e.now()
	if now < order.RevealedAt+e.params.ChallengeWindow {
		return nil, errTemporal("order %d challenge window still open", orderID)
	}
	if order.Status != StatusRevealed {
		return nil, errState("order %d is %s, expected REVEALED", orderID, order.Status)
	}
	if ch, exists := e.disputes.Get(orderID); exists && !ch.Resolved {
		return nil, errState("order %d has an unresolved challenge", orderID)
	}

	payout := e.solverPayout(orderID, order.Reward)
	if err := e.ledger.ReleaseRewardToSolver(orderID, order.Solver); err != nil {
		return nil, e.wrapTransfer(err)
	}
	order, err = e.orders.Transition(orderID, StatusRevealed, StatusVerified, nil)
	if err != nil {
		return nil, err
	}
	e.emit(NewVerifiedEvent(order, payout.String()))
	return order, nil
}

// ClaimTimeout lets the issuer reclaim the reward once the deadline has
// passed without a reveal. Any locked solver bond is slashed to the treasury.
func (e *Engine) ClaimTimeout(orderID uint64, caller types.Address) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != order.Issuer {
		return nil, errAuthorization("order %d: only the issuer may claim a timeout", orderID)
	}
	now := e.now()
	if now < order.Deadline {
		return nil, errTemporal("order %d deadline not reached", orderID)
	}
	switch order.Status {
	case StatusOpen, StatusAccepted, StatusCommitted:
	default:
		return nil, errState("order %d is %s, not expirable", orderID, order.Status)
	}

	slashed := e.ledger.SolverBond(orderID)
	if err := e.ledger.RefundToIssuer(orderID); err != nil {
		return nil, e.wrapTransfer(err)
	}
	if err := e.ledger.SlashSolver(orderID); err != nil {
		return nil, e.wrapTransfer(err)
	}
	order, err = e.orders.Transition(orderID, order.Status, StatusExpired, nil)
	if err != nil {
		return nil, err
	}
	bondAttr := ""
	if slashed.Sign() > 0 {
		bondAttr = slashed.String()
	}
	e.emit(NewExpiredEvent(order, bondAttr))
	return order, nil
}

// CancelOrder refunds an OPEN order back to its issuer.
func (e *Engine) CancelOrder(orderID uint64, caller types.Address) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != order.Issuer {
		return nil, errAuthorization("order %d: only the issuer may cancel", orderID)
	}
	if order.Status != StatusOpen {
		return nil, errState("order %d is %s, expected OPEN", orderID, order.Status)
	}

	if err := e.ledger.RefundToIssuer(orderID); err != nil {
		return nil, e.wrapTransfer(err)
	}
	order, err = e.orders.Transition(orderID, StatusOpen, StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	e.emit(NewCancelledEvent(order))
	return order, nil
}

// SubmitChallenge opens a dispute against a revealed solution inside the
// challenge window, locking the challenger's stake.
func (e *Engine) SubmitChallenge(orderID uint64, caller types.Address, reason string) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, errValidation("empty caller")
	}
	if caller == order.Solver {
		return nil, errAuthorization("order %d: the solver may not challenge their own solution", orderID)
	}
	if caller == order.Issuer {
		return nil, errAuthorization("order %d: the issuer may not challenge", orderID)
	}
	now := e.now()
	if now >= order.RevealedAt+e.params.ChallengeWindow {
		return nil, errTemporal("order %d challenge window closed", orderID)
	}
	if order.Status != StatusRevealed {
		return nil, errState("order %d is %s, expected REVEALED", orderID, order.Status)
	}

	stake := e.bpsShare(order.Reward, e.params.ChallengeBps)
	if err := e.ledger.LockChallengeStake(orderID, caller, stake); err != nil {
		return nil, e.wrapTransfer(err)
	}
	ch, err := e.disputes.Open(orderID, caller, stake, now, reason)
	if err != nil {
		return nil, err
	}
	order, err = e.orders.Transition(orderID, StatusRevealed, StatusChallenged, nil)
	if err != nil {
		return nil, err
	}
	e.emit(NewChallengedEvent(order, ch))
	return order, nil
}

// ResolveChallenge finalises a dispute. Only the privileged verifier may
// decide. Challenger won: the solver bond is slashed, the challenger gets
// their stake back plus half the bond, the issuer is refunded and the order
// is REJECTED. Challenger lost: the stake is split between solver and
// treasury, the solver is paid out and the order is VERIFIED.
func (e *Engine) ResolveChallenge(orderID uint64, caller types.Address, challengerWon bool) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != e.verifier {
		return nil, errAuthorization("order %d: only the verifier may resolve", orderID)
	}
	if order.Status != StatusChallenged {
		return nil, errState("order %d is %s, expected CHALLENGED", orderID, order.Status)
	}
	if _, exists := e.disputes.Get(orderID); !exists {
		return nil, errState("order %d has no challenge", orderID)
	}

	if _, err := e.disputes.Resolve(orderID, challengerWon); err != nil {
		return nil, err
	}
	if challengerWon {
		if err := e.ledger.RewardChallenger(orderID); err != nil {
			return nil, e.wrapTransfer(err)
		}
		if err := e.ledger.RefundToIssuer(orderID); err != nil {
			return nil, e.wrapTransfer(err)
		}
		order, err = e.orders.Transition(orderID, StatusChallenged, StatusRejected, nil)
	} else {
		if err := e.ledger.SlashChallenger(orderID, order.Solver); err != nil {
			return nil, e.wrapTransfer(err)
		}
		if err := e.ledger.ReleaseRewardToSolver(orderID, order.Solver); err != nil {
			return nil, e.wrapTransfer(err)
		}
		order, err = e.orders.Transition(orderID, StatusChallenged, StatusVerified, nil)
	}
	if err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(order, challengerWon))
	return order, nil
}

// SubmitVerification is the fast path for provably wrong (or right) answers
// on unchallenged orders: the verifier settles a REVEALED order directly
// without waiting for the challenge window.
func (e *Engine) SubmitVerification(orderID uint64, caller types.Address, correct bool, reason string) (*Order, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if caller != e.verifier {
		return nil, errAuthorization("order %d: only the verifier may verify", orderID)
	}
	if order.Status != StatusRevealed {
		return nil, errState("order %d is %s, expected REVEALED", orderID, order.Status)
	}
	if ch, exists := e.disputes.Get(orderID); exists && !ch.Resolved {
		return nil, errState("order %d has an open challenge, resolve it instead", orderID)
	}

	if _, err := e.disputes.CompleteVerification(orderID, correct, reason); err != nil {
		return nil, err
	}
	if correct {
		payout := e.solverPayout(orderID, order.Reward)
		if err := e.ledger.ReleaseRewardToSolver(orderID, order.Solver); err != nil {
			return nil, e.wrapTransfer(err)
		}
		order, err = e.orders.Transition(orderID, StatusRevealed, StatusVerified, nil)
		if err != nil {
			return nil, err
		}
		e.emit(NewVerifiedEvent(order, payout.String()))
		return order, nil
	}
	if err := e.ledger.RefundToIssuer(orderID); err != nil {
		return nil, e.wrapTransfer(err)
	}
	if err := e.ledger.SlashSolver(orderID); err != nil {
		return nil, e.wrapTransfer(err)
	}
	order, err = e.orders.Transition(orderID, StatusRevealed, StatusRejected, nil)
	if err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(order, false))
	return order, nil
}

// solverPayout mirrors the ledger release formula for event reporting.
func (e *Engine) solverPayout(orderID uint64, reward *big.Int) *big.Int {
	fee := e.bpsShare(reward, e.params.FeeBps)
	payout := new(big.Int).Sub(cloneBigInt(reward), fee)
	return payout.Add(payout, e.ledger.SolverBond(orderID))
}

// wrapTransfer classifies ledger failures: insufficient balance is an
// economic rejection, anything else is passed through.
func (e *Engine) wrapTransfer(err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, ErrInsufficientBalance) {
		return errEconomic("transfer failed", err)
	}
	return err
}

// GetOrder returns a copy of the order.
func (e *Engine) GetOrder(orderID uint64) (*Order, error) {
	return e.orders.Get(orderID)
}

// GetSubmission returns the commit-reveal record for an order.
func (e *Engine) GetSubmission(orderID uint64) (*SolutionSubmission, bool) {
	return e.commits.Get(orderID)
}

// GetChallenge returns the challenge for an order.
func (e *Engine) GetChallenge(orderID uint64) (*Challenge, bool) {
	return e.disputes.Get(orderID)
}

// OpenOrders lists copies of all currently open orders.
func (e *Engine) OpenOrders() ([]*Order, error) {
	ids, err := e.orders.OpenIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		order, err := e.orders.Get(id)
		if err != nil {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// PendingVerifications lists order ids awaiting a fast-path verdict.
func (e *Engine) PendingVerifications() ([]uint64, error) {
	return e.disputes.PendingVerifications()
}

// BalanceOf reports the payment-token balance of an identity.
func (e *Engine) BalanceOf(addr types.Address) (*big.Int, error) {
	return e.rail.BalanceOf(addr)
}

// Ledger exposes the escrow ledger for read-only balance queries.
func (e *Engine) Ledger() *Ledger { return e.ledger }
