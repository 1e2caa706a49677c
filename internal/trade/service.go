package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/ledger"
	"github.com/classstock/trading-engine/internal/model"
	"github.com/classstock/trading-engine/internal/simclock"
	"github.com/classstock/trading-engine/internal/store"
	"github.com/classstock/trading-engine/internal/valuation"
)

// MaxAllowedStocks caps the tradable universe a teacher can select for
// one class.
const MaxAllowedStocks = 10

var (
	// ErrTooManyStocks is returned when a class universe update exceeds
	// MaxAllowedStocks codes.
	ErrTooManyStocks = errors.New("trade: at most 10 allowed stocks per class")

	// ErrSeedMoneyLocked is returned when a seed money change is
	// attempted after enrollment has begun. Changing it retroactively
	// would corrupt already-computed profit baselines.
	ErrSeedMoneyLocked = errors.New("trade: seed money is immutable once students are enrolled")
)

// --- Request/Response types ---

// CreateClassRequest is the JSON body for class creation.
type CreateClassRequest struct {
	Name              string          `json:"name"`
	ActivityStart     string          `json:"activity_start"` // YYYY-MM-DD
	ActivityEnd       string          `json:"activity_end"`   // YYYY-MM-DD
	SeedMoney         decimal.Decimal `json:"seed_money"`
	CommissionEnabled bool            `json:"commission_enabled"`
	CommissionRate    decimal.Decimal `json:"commission_rate"` // percent, e.g. 0.1
}

// UpdateClassRequest is the JSON body for PATCH /classes/{classID}.
// Nil fields are left unchanged.
type UpdateClassRequest struct {
	Name              *string          `json:"name,omitempty"`
	ActivityStart     *string          `json:"activity_start,omitempty"`
	ActivityEnd       *string          `json:"activity_end,omitempty"`
	SeedMoney         *decimal.Decimal `json:"seed_money,omitempty"`
	AllowedStocks     *[]string        `json:"allowed_stocks,omitempty"`
	CommissionEnabled *bool            `json:"commission_enabled,omitempty"`
	CommissionRate    *decimal.Decimal `json:"commission_rate,omitempty"`
}

// EnrollRequest is the JSON body for student enrollment.
type EnrollRequest struct {
	Nickname string `json:"nickname"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	StudentID string `json:"student_id"`
	StockCode string `json:"stock_code"`
	Quantity  int64  `json:"quantity"`
	Kind      string `json:"kind"` // "buy" or "sell"
}

// BonusRequest is the JSON body for POST /bonus.
type BonusRequest struct {
	StudentIDs []string        `json:"student_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}

// RankingEntry is one row of a class ranking.
type RankingEntry struct {
	Rank int `json:"rank"`
	model.ValuationView
}

// --- HTTP Handlers ---

// CreateClass handles POST /api/v1/classes
func (s *Service) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if !validDate(req.ActivityStart) || !validDate(req.ActivityEnd) {
		writeError(w, "activity dates must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.ActivityEnd < req.ActivityStart {
		writeError(w, "activity_end must not be before activity_start", http.StatusBadRequest)
		return
	}
	if !req.SeedMoney.IsPositive() {
		writeError(w, "seed_money must be positive", http.StatusBadRequest)
		return
	}
	if !validRatePercent(req.CommissionRate) {
		writeError(w, "commission_rate must be between 0 and 100", http.StatusBadRequest)
		return
	}

	class := &model.ClassConfig{
		ID:            uuid.New().String(),
		Name:          req.Name,
		ActivityStart: req.ActivityStart,
		ActivityEnd:   req.ActivityEnd,
		SeedMoney:     req.SeedMoney.Truncate(0),
		AllowedStocks: []string{},
		Commission: model.Commission{
			Enabled:     req.CommissionEnabled,
			RatePercent: req.CommissionRate,
		},
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreateClass(r.Context(), class); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("class created", "id", class.ID, "name", class.Name, "seed", class.SeedMoney.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(class)
}

// GetClass handles GET /api/v1/classes/{classID}
func (s *Service) GetClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.store.GetClass(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, "class not found", http.StatusNotFound)
		return
	}
	writeJSON(w, class)
}

// UpdateClass handles PATCH /api/v1/classes/{classID}
// Allowed stock codes and commission terms are teacher-mutable; seed
// money is locked once a student has enrolled.
func (s *Service) UpdateClass(w http.ResponseWriter, r *http.Request) {
	var req UpdateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	class, err := s.store.GetClass(ctx, chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, "class not found", http.StatusNotFound)
		return
	}

	if req.SeedMoney != nil && !req.SeedMoney.Equal(class.SeedMoney) {
		enrolled, err := s.store.ListStudentsByClass(ctx, class.ID)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(enrolled) > 0 {
			writeError(w, ErrSeedMoneyLocked.Error(), http.StatusConflict)
			return
		}
		class.SeedMoney = req.SeedMoney.Truncate(0)
	}

	if req.AllowedStocks != nil {
		codes := *req.AllowedStocks
		if len(codes) > MaxAllowedStocks {
			writeError(w, ErrTooManyStocks.Error(), http.StatusConflict)
			return
		}
		for _, code := range codes {
			if _, err := s.cat.Get(code); err != nil {
				writeError(w, err.Error(), http.StatusNotFound)
				return
			}
		}
		class.AllowedStocks = codes
	}

	if req.Name != nil {
		class.Name = *req.Name
	}
	if req.ActivityStart != nil {
		if !validDate(*req.ActivityStart) {
			writeError(w, "activity_start must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		class.ActivityStart = *req.ActivityStart
	}
	if req.ActivityEnd != nil {
		if !validDate(*req.ActivityEnd) {
			writeError(w, "activity_end must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		class.ActivityEnd = *req.ActivityEnd
	}
	if req.CommissionEnabled != nil {
		class.Commission.Enabled = *req.CommissionEnabled
	}
	if req.CommissionRate != nil {
		if !validRatePercent(*req.CommissionRate) {
			writeError(w, "commission_rate must be between 0 and 100", http.StatusBadRequest)
			return
		}
		class.Commission.RatePercent = *req.CommissionRate
	}
	if class.ActivityEnd < class.ActivityStart {
		writeError(w, "activity_end must not be before activity_start", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateClass(ctx, class); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, class)
}

// EnrollStudent handles POST /api/v1/classes/{classID}/students
// The new account starts with cash equal to the class seed money and
// no holdings.
func (s *Service) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Nickname == "" {
		writeError(w, "nickname is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	class, err := s.store.GetClass(ctx, chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, "class not found", http.StatusNotFound)
		return
	}

	acct := &model.StudentAccount{
		ID:       uuid.New().String(),
		Nickname: req.Nickname,
		ClassID:  class.ID,
		Cash:     class.SeedMoney,
		Holdings: map[string]model.Holding{},
	}
	if err := s.store.CreateStudent(ctx, acct); err != nil {
		if errors.Is(err, store.ErrNicknameTaken) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("student enrolled", "id", acct.ID, "class", class.ID, "nickname", acct.Nickname)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(acct)
}

// RemoveStudent handles DELETE /api/v1/students/{studentID}
// The account's transaction history is deleted first, then the account;
// the store offers no cross-record transaction, so the sequencing is
// done here.
func (s *Service) RemoveStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	ctx := r.Context()

	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		writeError(w, "student not found", http.StatusNotFound)
		return
	}
	if err := s.store.DeleteTransactionsByStudent(ctx, studentID); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.DeleteStudent(ctx, studentID); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("student removed", "id", studentID)
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteTrade handles POST /api/v1/trade
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StudentID == "" {
		writeError(w, "student_id is required", http.StatusBadRequest)
		return
	}

	tx, err := s.Execute(r.Context(), req.StudentID, req.StockCode, req.Quantity, req.Kind)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, tx)
}

// GrantBonusHandler handles POST /api/v1/bonus
func (s *Service) GrantBonusHandler(w http.ResponseWriter, r *http.Request) {
	var req BonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.StudentIDs) == 0 {
		writeError(w, "student_ids is required", http.StatusBadRequest)
		return
	}

	granted, err := s.GrantBonus(r.Context(), req.StudentIDs, req.Amount.Truncate(0), req.Reason)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, granted)
}

// ListStocks handles GET /api/v1/stocks
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cat.Snapshot())
}

// GetPortfolio handles GET /api/v1/students/{studentID}/portfolio
// Returns the computed valuation view; nothing here is persisted.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	ctx := r.Context()

	acct, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		writeError(w, "student not found", http.StatusNotFound)
		return
	}
	class, err := s.store.GetClass(ctx, acct.ClassID)
	if err != nil {
		writeError(w, "class not found", http.StatusNotFound)
		return
	}
	txs, err := s.store.TransactionsByStudent(ctx, studentID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, valuation.Snapshot(acct, class, s.cat, txs))
}

// GetTransactions handles GET /api/v1/students/{studentID}/transactions
// Returns the full history in chronological order.
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.TransactionsByStudent(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, txs)
}

// GetRanking handles GET /api/v1/classes/{classID}/ranking
// ?by=total_assets (default) or ?by=investment_profit_rate.
// Ties keep enrollment order: the sort is stable with no secondary key.
func (s *Service) GetRanking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, err := s.store.GetClass(ctx, chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, "class not found", http.StatusNotFound)
		return
	}

	accounts, err := s.store.ListStudentsByClass(ctx, class.ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]model.ValuationView, 0, len(accounts))
	for i := range accounts {
		txs, err := s.store.TransactionsByStudent(ctx, accounts[i].ID)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, valuation.Snapshot(&accounts[i], class, s.cat, txs))
	}

	key := valuation.ByTotalAssets
	if r.URL.Query().Get("by") == string(valuation.ByInvestmentProfitRate) {
		key = valuation.ByInvestmentProfitRate
	}

	ranked := valuation.Rank(views, key)
	entries := make([]RankingEntry, 0, len(ranked))
	for i, v := range ranked {
		entries = append(entries, RankingEntry{Rank: i + 1, ValuationView: v})
	}
	writeJSON(w, entries)
}

// --- helpers ---

func validDate(s string) bool {
	_, err := time.ParseInLocation(simclock.DateFormat, s, simclock.KST)
	return err == nil
}

// validRatePercent bounds the commission rate to [0, 100]. Above 100 a
// sell's commission exceeds its gross proceeds and would drive cash
// negative; below 0 commission would mint cash.
func validRatePercent(rate decimal.Decimal) bool {
	return !rate.IsNegative() && !rate.GreaterThan(pctDivisor)
}

// statusForError maps business sentinels to HTTP statuses. Anything
// unrecognized is a persistence or programmer error → 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidBonusAmount):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownStock),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrClassNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, ErrOutsideActivityWindow),
		errors.Is(err, ErrStockNotAllowed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
