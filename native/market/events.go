package market

import (
	"encoding/hex"
	"strconv"

	"ominis/core/types"
)

const (
	EventTypeOrderPosted     = "market.order.posted"
	EventTypeOrderAccepted   = "market.order.accepted"
	EventTypeOrderCommitted  = "market.order.committed"
	EventTypeOrderRevealed   = "market.order.revealed"
	EventTypeOrderVerified   = "market.order.verified"
	EventTypeOrderChallenged = "market.order.challenged"
	EventTypeOrderResolved   = "market.order.resolved"
	EventTypeOrderCancelled  = "market.order.cancelled"
	EventTypeOrderExpired    = "market.order.expired"
)

// NewPostedEvent returns the canonical payload for a newly posted order.
func NewPostedEvent(o *Order) *types.Event {
	evt := newOrderEvent(EventTypeOrderPosted, o)
	if o != nil {
		evt.Attributes["problemHash"] = hex.EncodeToString(o.ProblemHash[:])
		evt.Attributes["kind"] = o.Kind.String()
		evt.Attributes["tier"] = o.Tier.String()
		evt.Attributes["deadline"] = strconv.FormatInt(o.Deadline, 10)
	}
	return evt
}

// NewAcceptedEvent returns the payload emitted when a solver takes the order.
func NewAcceptedEvent(o *Order, bond string) *types.Event {
	evt := newOrderEvent(EventTypeOrderAccepted, o)
	evt.Attributes["bond"] = bond
	return evt
}

// NewCommittedEvent returns the payload emitted on solution commit.
func NewCommittedEvent(o *Order, commitHash [32]byte) *types.Event {
	evt := newOrderEvent(EventTypeOrderCommitted, o)
	evt.Attributes["commitHash"] = hex.EncodeToString(commitHash[:])
	return evt
}

// NewRevealedEvent returns the payload emitted on a valid reveal. The payload
// itself stays off-event; only the reveal time that anchors the challenge
// window is carried.
func NewRevealedEvent(o *Order, revealedAt int64) *types.Event {
	evt := newOrderEvent(EventTypeOrderRevealed, o)
	evt.Attributes["revealedAt"] = strconv.FormatInt(revealedAt, 10)
	return evt
}

// NewVerifiedEvent returns the payload emitted when the order settles in the
// solver's favour, via claim, fast-path verification or a failed challenge.
func NewVerifiedEvent(o *Order, payout string) *types.Event {
	evt := newOrderEvent(EventTypeOrderVerified, o)
	evt.Attributes["payout"] = payout
	return evt
}

// NewChallengedEvent returns the payload emitted when a dispute opens.
func NewChallengedEvent(o *Order, ch *Challenge) *types.Event {
	evt := newOrderEvent(EventTypeOrderChallenged, o)
	if ch != nil {
		evt.Attributes["challenger"] = ch.Challenger.Hex()
		evt.Attributes["stake"] = ch.Stake.String()
		if ch.Reason != "" {
			evt.Attributes["reason"] = ch.Reason
		}
	}
	return evt
}

// NewResolvedEvent returns the payload emitted on a verifier decision, for
// both challenge resolutions and fast-path verifications.
func NewResolvedEvent(o *Order, challengerWon bool) *types.Event {
	evt := newOrderEvent(EventTypeOrderResolved, o)
	evt.Attributes["challengerWon"] = strconv.FormatBool(challengerWon)
	return evt
}

// NewCancelledEvent returns the payload for an issuer cancellation.
func NewCancelledEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypeOrderCancelled, o)
}

// NewExpiredEvent returns the payload for a deadline timeout claim.
func NewExpiredEvent(o *Order, slashedBond string) *types.Event {
	evt := newOrderEvent(EventTypeOrderExpired, o)
	if slashedBond != "" {
		evt.Attributes["slashedBond"] = slashedBond
	}
	return evt
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["orderId"] = strconv.FormatUint(o.ID, 10)
	attrs["issuer"] = o.Issuer.Hex()
	attrs["status"] = o.Status.String()
	attrs["reward"] = cloneBigInt(o.Reward).String()
	if !o.Solver.IsZero() {
		attrs["solver"] = o.Solver.Hex()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
