package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ominis/core/events"
	"ominis/core/types"
	"ominis/native/market"
)

// eventCarrier is implemented by the engine's emitted events; it exposes the
// canonical attribute payload.
type eventCarrier interface {
	Event() *types.Event
}

// Indexer projects settlement events into a relational store for queries.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open initialises the sqlite-backed indexer and migrates its schema.
func Open(path string, log *slog.Logger) (*Indexer, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderRecord{}, &SolutionRecord{}, &ChallengeRecord{}, &EventRecord{}); err != nil {
		return nil, err
	}
	return &Indexer{db: db, logger: log}, nil
}

// Run drains the emitter on the given interval until the context ends.
func (ix *Indexer) Run(ctx context.Context, source *events.MemoryEmitter, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, evt := range source.Drain() {
				ix.HandleEvent(evt)
			}
		}
	}
}

// HandleEvent projects one settlement event. Unknown event types are logged
// and stored in the raw log only.
func (ix *Indexer) HandleEvent(evt events.Event) {
	carrier, ok := evt.(eventCarrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	attrs := payload.Attributes
	orderID, _ := strconv.ParseUint(attrs["orderId"], 10, 64)
	ix.appendRaw(payload, orderID)

	switch payload.Type {
	case market.EventTypeOrderPosted:
		deadline, _ := strconv.ParseInt(attrs["deadline"], 10, 64)
		record := OrderRecord{
			ID:          orderID,
			Issuer:      attrs["issuer"],
			ProblemHash: attrs["problemHash"],
			Kind:        attrs["kind"],
			Tier:        attrs["tier"],
			Status:      attrs["status"],
			Reward:      attrs["reward"],
			Deadline:    deadline,
		}
		if err := ix.db.Save(&record).Error; err != nil {
			ix.logger.Error("index posted order", "orderId", orderID, "error", err)
		}
	case market.EventTypeOrderAccepted:
		ix.updateOrder(orderID, map[string]any{
			"status": attrs["status"],
			"solver": attrs["solver"],
		})
	case market.EventTypeOrderCommitted:
		record := SolutionRecord{
			OrderID:    orderID,
			Solver:     attrs["solver"],
			CommitHash: attrs["commitHash"],
		}
		if err := ix.db.Save(&record).Error; err != nil {
			ix.logger.Error("index commit", "orderId", orderID, "error", err)
		}
		ix.updateOrder(orderID, map[string]any{"status": attrs["status"]})
	case market.EventTypeOrderRevealed:
		revealedAt, _ := strconv.ParseInt(attrs["revealedAt"], 10, 64)
		ix.db.Model(&SolutionRecord{}).Where("order_id = ?", orderID).
			Update("revealed_at", revealedAt)
		ix.updateOrder(orderID, map[string]any{"status": attrs["status"]})
	case market.EventTypeOrderChallenged:
		record := ChallengeRecord{
			OrderID:    orderID,
			Challenger: attrs["challenger"],
			Stake:      attrs["stake"],
			Reason:     attrs["reason"],
		}
		if err := ix.db.Save(&record).Error; err != nil {
			ix.logger.Error("index challenge", "orderId", orderID, "error", err)
		}
		ix.updateOrder(orderID, map[string]any{"status": attrs["status"]})
	case market.EventTypeOrderResolved:
		won := attrs["challengerWon"] == "true"
		ix.db.Model(&ChallengeRecord{}).Where("order_id = ?", orderID).
			Updates(map[string]any{"resolved": true, "challenger_won": won})
		ix.updateOrder(orderID, map[string]any{"status": attrs["status"]})
	case market.EventTypeOrderVerified, market.EventTypeOrderCancelled, market.EventTypeOrderExpired:
		ix.updateOrder(orderID, map[string]any{"status": attrs["status"]})
	}
}

func (ix *Indexer) updateOrder(orderID uint64, fields map[string]any) {
	if err := ix.db.Model(&OrderRecord{}).Where("id = ?", orderID).Updates(fields).Error; err != nil {
		ix.logger.Error("index order update", "orderId", orderID, "error", err)
	}
}

func (ix *Indexer) appendRaw(payload *types.Event, orderID uint64) {
	raw, err := json.Marshal(payload.Attributes)
	if err != nil {
		raw = []byte("{}")
	}
	record := EventRecord{
		ID:         uuid.New(),
		Type:       payload.Type,
		OrderID:    orderID,
		Attributes: string(raw),
	}
	if err := ix.db.Create(&record).Error; err != nil {
		ix.logger.Error("index raw event", "type", payload.Type, "error", err)
	}
}

// RecentOrders returns the newest orders first, up to limit.
func (ix *Indexer) RecentOrders(limit int) ([]OrderRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var records []OrderRecord
	err := ix.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

// Order returns one projected order with its solution and challenge.
func (ix *Indexer) Order(orderID uint64) (*OrderRecord, *SolutionRecord, *ChallengeRecord, error) {
	var order OrderRecord
	if err := ix.db.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, nil, nil, err
	}
	var solution *SolutionRecord
	var sol SolutionRecord
	if err := ix.db.First(&sol, "order_id = ?", orderID).Error; err == nil {
		solution = &sol
	}
	var challenge *ChallengeRecord
	var ch ChallengeRecord
	if err := ix.db.First(&ch, "order_id = ?", orderID).Error; err == nil {
		challenge = &ch
	}
	return &order, solution, challenge, nil
}

// StatsForSolver aggregates outcomes and earnings for one solver identity.
func (ix *Indexer) StatsForSolver(solver string) (*SolverStats, error) {
	stats := &SolverStats{Solver: solver, TotalEarned: "0"}
	if err := ix.db.Model(&OrderRecord{}).Where("solver = ?", solver).
		Count(&stats.Accepted).Error; err != nil {
		return nil, err
	}
	if err := ix.db.Model(&OrderRecord{}).Where("solver = ? AND status = ?", solver, "VERIFIED").
		Count(&stats.Verified).Error; err != nil {
		return nil, err
	}
	if err := ix.db.Model(&OrderRecord{}).Where("solver = ? AND status = ?", solver, "REJECTED").
		Count(&stats.Rejected).Error; err != nil {
		return nil, err
	}
	var rewards []string
	if err := ix.db.Model(&OrderRecord{}).Where("solver = ? AND status = ?", solver, "VERIFIED").
		Pluck("reward", &rewards).Error; err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, reward := range rewards {
		if v, ok := new(big.Int).SetString(reward, 10); ok {
			total.Add(total, v)
		}
	}
	stats.TotalEarned = total.String()
	return stats, nil
}
