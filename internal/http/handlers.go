package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"rovledger/internal/auth"
	"rovledger/internal/core"
	"rovledger/internal/services"
	"rovledger/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrSameAccount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.loginLimiter.allow(ip) {
		slog.WarnContext(r.Context(), "Login rate limit exceeded", "client_ip", ip)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.ledger.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		slog.WarnContext(r.Context(), "Login failed", "username", req.Username, "client_ip", ip)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Generate(user.Username, user.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Login succeeded", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: string(user.Role)})
}

// --- rate ---

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.rates.Latest(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"usd_to_inr": rate})
}

// --- dashboard ---

type moneyJSON struct {
	Cents int64  `json:"cents"`
	Units string `json:"units"`
}

func toMoneyJSON(m core.Money) moneyJSON {
	return moneyJSON{Cents: m.Cents, Units: strconv.FormatFloat(m.Units(), 'f', 2, 64)}
}

type monthlyTotalJSON struct {
	Month   string    `json:"month"`
	Income  moneyJSON `json:"income"`
	Expense moneyJSON `json:"expense"`
}

type counterpartyIncomeJSON struct {
	Counterparty string    `json:"counterparty"`
	Total        moneyJSON `json:"total"`
}

type categoryExpenseJSON struct {
	Category string    `json:"category"`
	Total    moneyJSON `json:"total"`
}

type dashboardResponse struct {
	USDBalance     moneyJSON                `json:"usd_balance"`
	INRBalance     moneyJSON                `json:"inr_balance"`
	CombinedUSD    moneyJSON                `json:"combined_usd"`
	USDToINR       float64                  `json:"usd_to_inr"`
	MonthlyTotals  []monthlyTotalJSON       `json:"monthly_totals"`
	IncomeSources  []counterpartyIncomeJSON `json:"income_sources"`
	ExpenseByGroup []categoryExpenseJSON    `json:"expense_by_group"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 0 || m > 120 {
			writeError(w, http.StatusBadRequest, "invalid months parameter")
			return
		}
		months = m
	}

	summary, err := s.ledger.Dashboard(r.Context(), months)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := dashboardResponse{
		USDBalance:     toMoneyJSON(summary.USDBalance),
		INRBalance:     toMoneyJSON(summary.INRBalance),
		CombinedUSD:    toMoneyJSON(summary.CombinedUSD),
		USDToINR:       summary.USDToINR,
		MonthlyTotals:  make([]monthlyTotalJSON, 0, len(summary.MonthlyTotals)),
		IncomeSources:  make([]counterpartyIncomeJSON, 0, len(summary.IncomeSources)),
		ExpenseByGroup: make([]categoryExpenseJSON, 0, len(summary.ExpenseByGroup)),
	}
	for _, mt := range summary.MonthlyTotals {
		resp.MonthlyTotals = append(resp.MonthlyTotals, monthlyTotalJSON{
			Month:   mt.Month,
			Income:  toMoneyJSON(mt.Income),
			Expense: toMoneyJSON(mt.Expense),
		})
	}
	for _, is := range summary.IncomeSources {
		resp.IncomeSources = append(resp.IncomeSources, counterpartyIncomeJSON{
			Counterparty: is.Counterparty,
			Total:        toMoneyJSON(is.Total),
		})
	}
	for _, eg := range summary.ExpenseByGroup {
		resp.ExpenseByGroup = append(resp.ExpenseByGroup, categoryExpenseJSON{
			Category: eg.Category,
			Total:    toMoneyJSON(eg.Total),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- accounts and categories ---

type accountJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountJSON{ID: a.ID, Name: a.Name, CurrencyCode: a.CurrencyCode})
	}
	writeJSON(w, http.StatusOK, out)
}

type accountBalanceJSON struct {
	AccountID int64     `json:"account_id"`
	Balance   moneyJSON `json:"balance"`
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	balance, err := s.ledger.Balance(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountBalanceJSON{AccountID: id, Balance: toMoneyJSON(balance)})
}

type categoryJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.ledger.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]categoryJSON, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryJSON{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- transactions ---

type transactionJSON struct {
	ID           int64     `json:"id"`
	Date         string    `json:"date"`
	Type         string    `json:"type"`
	Amount       moneyJSON `json:"amount"`
	Description  string    `json:"description,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	IsVoid       bool      `json:"is_void"`
	ExchangeRate *float64  `json:"exchange_rate,omitempty"`
	TransferID   string    `json:"transfer_id,omitempty"`
	AccountID    int64     `json:"account_id"`
	CategoryID   int64     `json:"category_id"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:           t.ID,
		Date:         t.Date.String(),
		Type:         string(t.Type),
		Amount:       toMoneyJSON(t.Amount),
		Description:  t.Description,
		Counterparty: t.Counterparty,
		IsVoid:       t.IsVoid,
		ExchangeRate: t.ExchangeRate,
		TransferID:   t.TransferID,
		AccountID:    t.AccountID,
		CategoryID:   t.CategoryID,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter storage.TransactionFilter
	q := r.URL.Query()
	if v := q.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id parameter")
			return
		}
		filter.AccountID = id
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category_id parameter")
			return
		}
		filter.CategoryID = id
	}
	filter.IncludeVoid = q.Get("include_void") == "true"

	transactions, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]transactionJSON, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

type createTransactionRequest struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	AccountID    int64  `json:"account_id"`
	CategoryID   int64  `json:"category_id"`
	Counterparty string `json:"counterparty"`
	Description  string `json:"description"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	txType, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.ledger.AddTransaction(r.Context(), services.AddTransactionParams{
		Date:         date,
		Type:         txType,
		Amount:       core.Money{Cents: cents},
		AccountID:    req.AccountID,
		CategoryID:   req.CategoryID,
		Counterparty: req.Counterparty,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(created))
}

func (s *Server) handleVoidTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if err := s.ledger.VoidTransaction(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_void": true})
}

// --- splits ---

type splitRequest struct {
	Amount      string `json:"amount"`
	CategoryID  int64  `json:"category_id"`
	Description string `json:"description"`
}

type splitJSON struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	Amount        moneyJSON `json:"amount"`
	CategoryID    int64     `json:"category_id"`
	Description   string    `json:"description,omitempty"`
}

func (s *Server) handleAddSplits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var reqs []splitRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one split is required")
		return
	}

	splits := make([]core.TransactionSplit, 0, len(reqs))
	for _, sr := range reqs {
		cents, err := core.ParseDecimalToCents(sr.Amount)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		splits = append(splits, core.TransactionSplit{
			Amount:      core.Money{Cents: cents},
			CategoryID:  sr.CategoryID,
			Description: sr.Description,
		})
	}

	created, err := s.ledger.AddSplits(r.Context(), id, splits)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]splitJSON, 0, len(created))
	for _, sp := range created {
		out = append(out, splitJSON{
			ID:            sp.ID,
			TransactionID: sp.TransactionID,
			Amount:        toMoneyJSON(sp.Amount),
			CategoryID:    sp.CategoryID,
			Description:   sp.Description,
		})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	splits, err := s.ledger.ListSplits(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]splitJSON, 0, len(splits))
	for _, sp := range splits {
		out = append(out, splitJSON{
			ID:            sp.ID,
			TransactionID: sp.TransactionID,
			Amount:        toMoneyJSON(sp.Amount),
			CategoryID:    sp.CategoryID,
			Description:   sp.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- transfers ---

type transferRequest struct {
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	Description   string `json:"description"`
}

type transferResponse struct {
	TransferID string          `json:"transfer_id"`
	Withdrawal transactionJSON `json:"withdrawal"`
	Deposit    transactionJSON `json:"deposit"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	withdrawal, deposit, err := s.ledger.Transfer(r.Context(), services.TransferParams{
		Date:          date,
		Amount:        core.Money{Cents: cents},
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Description:   req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{
		TransferID: withdrawal.TransferID,
		Withdrawal: toTransactionJSON(withdrawal),
		Deposit:    toTransactionJSON(deposit),
	})
}
