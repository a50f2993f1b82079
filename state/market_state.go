package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"ominis/core/types"
	"ominis/native/market"
	"ominis/storage"
)

// Key prefixes for the market keyspace. Orders are keyed by big-endian id so
// the on-disk layout sorts in creation order.
var (
	keyNextOrderID     = []byte("market/meta/next-order-id")
	keyOpenIndex       = []byte("market/index/open")
	keyPendingVerIndex = []byte("market/index/pending-verifications")
	prefixOrder        = "market/order/"
	prefixSubmission   = "market/submission/"
	prefixChallenge    = "market/challenge/"
	prefixVerification = "market/verification/"
	prefixEscrow       = "market/escrow/"
	prefixAccount      = "market/account/"
)

// MarketState persists market records through a storage.Database and
// implements market.State. A single mutex gives callers the serialized view
// the settlement engine expects; every accessor decodes a fresh copy so no
// caller ever holds an alias into the store.
type MarketState struct {
	mu sync.RWMutex
	db storage.Database
}

// NewMarketState wraps a database in a market state backend.
func NewMarketState(db storage.Database) *MarketState {
	return &MarketState{db: db}
}

func orderKey(id uint64) []byte {
	key := make([]byte, len(prefixOrder)+8)
	copy(key, prefixOrder)
	binary.BigEndian.PutUint64(key[len(prefixOrder):], id)
	return key
}

func idKey(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func accountKey(addr types.Address) []byte {
	return append([]byte(prefixAccount), []byte(addr.Hex())...)
}

func (s *MarketState) putJSON(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *MarketState) getJSON(key []byte, v any) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// NextOrderID reserves the next monotonic id, starting at 1.
func (s *MarketState) NextOrderID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next uint64 = 1
	raw, err := s.db.Get(keyNextOrderID)
	if err == nil && len(raw) == 8 {
		next = binary.BigEndian.Uint64(raw)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next+1)
	if err := s.db.Put(keyNextOrderID, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// OrderPut sanitizes and persists the order, maintaining the open-order
// index.
func (s *MarketState) OrderPut(order *market.Order) error {
	sanitized, err := market.SanitizeOrder(order)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putJSON(orderKey(sanitized.ID), sanitized); err != nil {
		return err
	}
	return s.updateIndex(keyOpenIndex, sanitized.ID, sanitized.Status == market.StatusOpen)
}

// OrderGet returns a fresh copy of the order.
func (s *MarketState) OrderGet(id uint64) (*market.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var order market.Order
	ok, err := s.getJSON(orderKey(id), &order)
	if !ok || err != nil {
		return nil, false
	}
	return &order, true
}

// OpenOrderIDs lists open orders ascending.
func (s *MarketState) OpenOrderIDs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readIndex(keyOpenIndex)
}

// SubmissionPut persists the commit-reveal record.
func (s *MarketState) SubmissionPut(sub *market.SolutionSubmission) error {
	if sub == nil {
		return fmt.Errorf("state: nil submission")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(idKey(prefixSubmission, sub.OrderID), sub.Clone())
}

// SubmissionGet returns a fresh copy of the submission.
func (s *MarketState) SubmissionGet(orderID uint64) (*market.SolutionSubmission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sub market.SolutionSubmission
	ok, err := s.getJSON(idKey(prefixSubmission, orderID), &sub)
	if !ok || err != nil {
		return nil, false
	}
	return &sub, true
}

// ChallengePut persists the challenge record.
func (s *MarketState) ChallengePut(ch *market.Challenge) error {
	if ch == nil {
		return fmt.Errorf("state: nil challenge")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(idKey(prefixChallenge, ch.OrderID), ch.Clone())
}

// ChallengeGet returns a fresh copy of the challenge.
func (s *MarketState) ChallengeGet(orderID uint64) (*market.Challenge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ch market.Challenge
	ok, err := s.getJSON(idKey(prefixChallenge, orderID), &ch)
	if !ok || err != nil {
		return nil, false
	}
	return &ch, true
}

// VerificationPut persists the verification request and maintains the
// pending index.
func (s *MarketState) VerificationPut(req *market.VerificationRequest) error {
	if req == nil {
		return fmt.Errorf("state: nil verification request")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putJSON(idKey(prefixVerification, req.OrderID), req.Clone()); err != nil {
		return err
	}
	return s.updateIndex(keyPendingVerIndex, req.OrderID, !req.Processed)
}

// VerificationGet returns a fresh copy of the verification request.
func (s *MarketState) VerificationGet(orderID uint64) (*market.VerificationRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var req market.VerificationRequest
	ok, err := s.getJSON(idKey(prefixVerification, orderID), &req)
	if !ok || err != nil {
		return nil, false
	}
	return &req, true
}

// PendingVerificationIDs lists unprocessed verification requests ascending.
func (s *MarketState) PendingVerificationIDs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readIndex(keyPendingVerIndex)
}

// EscrowPut persists the per-order escrow balances.
func (s *MarketState) EscrowPut(esc *market.OrderEscrow) error {
	if esc == nil {
		return fmt.Errorf("state: nil escrow")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(idKey(prefixEscrow, esc.OrderID), esc.Clone())
}

// EscrowGet returns a fresh copy of the escrow record.
func (s *MarketState) EscrowGet(orderID uint64) (*market.OrderEscrow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var esc market.OrderEscrow
	ok, err := s.getJSON(idKey(prefixEscrow, orderID), &esc)
	if !ok || err != nil {
		return nil, false
	}
	return &esc, true
}

// GetAccount returns the account for an address, or a zeroed account when
// none is stored yet.
func (s *MarketState) GetAccount(addr types.Address) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var acc types.Account
	ok, err := s.getJSON(accountKey(addr), &acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(&acc), nil
}

// PutAccount persists the account.
func (s *MarketState) PutAccount(addr types.Address, acc *types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(accountKey(addr), types.EnsureAccount(acc).Clone())
}

// updateIndex adds or removes an id from a sorted id-set key. Caller holds
// the write lock.
func (s *MarketState) updateIndex(key []byte, id uint64, present bool) error {
	ids, err := s.readIndex(key)
	if err != nil {
		return err
	}
	pos := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	found := pos < len(ids) && ids[pos] == id
	switch {
	case present && !found:
		ids = append(ids, 0)
		copy(ids[pos+1:], ids[pos:])
		ids[pos] = id
	case !present && found:
		ids = append(ids[:pos], ids[pos+1:]...)
	default:
		return nil
	}
	return s.putJSON(key, ids)
}

func (s *MarketState) readIndex(key []byte) ([]uint64, error) {
	var ids []uint64
	if _, err := s.getJSON(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
