package indexer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Router builds the read-only query API over the indexed projections.
func (ix *Indexer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/orders", ix.handleRecentOrders)
	r.Get("/orders/{id}", ix.handleOrder)
	r.Get("/solvers/{address}/stats", ix.handleSolverStats)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (ix *Indexer) handleRecentOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := ix.RecentOrders(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type orderDetail struct {
	Order     OrderRecord      `json:"order"`
	Solution  *SolutionRecord  `json:"solution,omitempty"`
	Challenge *ChallengeRecord `json:"challenge,omitempty"`
}

func (ix *Indexer) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	order, solution, challenge, err := ix.Order(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, orderDetail{Order: *order, Solution: solution, Challenge: challenge})
}

func (ix *Indexer) handleSolverStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ix.StatsForSolver(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
