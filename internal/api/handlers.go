package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/duebook-dev/duebook/internal/commitments"
	"github.com/duebook-dev/duebook/internal/model"
	"github.com/duebook-dev/duebook/internal/store"
)

const dateLayout = "2006-01-02"

// ─── Accounts ───────────────────────────────────────────────────────────────

type accountRequest struct {
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	StartingBalance string `json:"startingBalance"` // decimal string
}

type accountResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, model.Validationf("X-Owner-ID", "header is required"))
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.Validationf("body", "malformed JSON: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, model.Validationf("name", "is required"))
		return
	}
	balanceCents := int64(0)
	if req.StartingBalance != "" {
		amount, err := decimal.NewFromString(req.StartingBalance)
		if err != nil {
			writeError(w, model.Validationf("startingBalance", "not a decimal amount: %v", err))
			return
		}
		shifted := amount.Shift(2)
		if amount.IsNegative() || !shifted.Equal(shifted.Truncate(0)) {
			writeError(w, model.Validationf("startingBalance", "must be a non-negative amount with at most two decimal places"))
			return
		}
		balanceCents = shifted.IntPart()
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	account := store.Account{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Name:         req.Name,
		Currency:     currency,
		BalanceCents: balanceCents,
	}
	if err := s.db.CreateAccount(account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.db.GetAccount(ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func toAccountResponse(a store.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Name:     a.Name,
		Currency: a.Currency,
		Balance:  decimal.New(a.BalanceCents, -2).StringFixed(2),
	}
}

// ─── Commitments ────────────────────────────────────────────────────────────

type ruleRequest struct {
	Frequency  string `json:"frequency"`
	Interval   int    `json:"interval"`
	ByWeekday  []int  `json:"byWeekday"`
	ByMonthDay []int  `json:"byMonthDay"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Remaining  *int   `json:"remaining"`
}

type createCommitmentRequest struct {
	AccountID   string       `json:"accountId"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Amount      string       `json:"amount"`
	Currency    string       `json:"currency"`
	Status      string       `json:"status"`
	DueDate     string       `json:"dueDate"`
	Note        string       `json:"note"`
	IsRecurring bool         `json:"isRecurring"`
	Rule        *ruleRequest `json:"rule"`
}

type updateCommitmentRequest struct {
	AccountID   *string      `json:"accountId"`
	Name        *string      `json:"name"`
	Category    *string      `json:"category"`
	Amount      *string      `json:"amount"`
	Currency    *string      `json:"currency"`
	Status      *string      `json:"status"`
	DueDate     *string      `json:"dueDate"`
	Note        *string      `json:"note"`
	IsRecurring *bool        `json:"isRecurring"`
	Rule        *ruleRequest `json:"rule"`
}

type ruleResponse struct {
	Frequency  string `json:"frequency"`
	Interval   int    `json:"interval"`
	ByWeekday  []int  `json:"byWeekday,omitempty"`
	ByMonthDay []int  `json:"byMonthDay,omitempty"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate,omitempty"`
	Remaining  *int   `json:"remaining,omitempty"`
}

type commitmentResponse struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"accountId"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Amount      string        `json:"amount"`
	Currency    string        `json:"currency"`
	Status      string        `json:"status"`
	DueDate     string        `json:"dueDate"`
	PaidAt      string        `json:"paidAt,omitempty"`
	Note        string        `json:"note,omitempty"`
	IsRecurring bool          `json:"isRecurring"`
	Rule        *ruleResponse `json:"rule,omitempty"`
}

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, model.Validationf("X-Owner-ID", "header is required"))
		return
	}
	var req createCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.Validationf("body", "malformed JSON: %v", err))
		return
	}
	params, err := toCreateParams(req)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.service.Create(r.Context(), owner, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitmentResponse(c))
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	var filter store.ListFilter
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = model.Status(v)
	}
	if v := r.URL.Query().Get("dueFrom"); v != "" {
		ts, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, model.Validationf("dueFrom", "not a date: %v", err))
			return
		}
		filter.DueFrom = &ts
	}
	if v := r.URL.Query().Get("dueTo"); v != "" {
		ts, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, model.Validationf("dueTo", "not a date: %v", err))
			return
		}
		filter.DueTo = &ts
	}

	list, err := s.service.List(ownerID(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	result := make([]commitmentResponse, 0, len(list))
	for _, c := range list {
		result = append(result, toCommitmentResponse(c))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentResponse(c))
}

func (s *Server) handleUpdateCommitment(w http.ResponseWriter, r *http.Request) {
	var req updateCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.Validationf("body", "malformed JSON: %v", err))
		return
	}
	patch, err := toUpdateParams(req)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.service.Update(r.Context(), ownerID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentResponse(c))
}

func (s *Server) handleDeleteCommitment(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Request/response mapping ───────────────────────────────────────────────

func toCreateParams(req createCommitmentRequest) (commitments.CreateParams, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return commitments.CreateParams{}, err
	}
	dueDate, err := parseDate("dueDate", req.DueDate)
	if err != nil {
		return commitments.CreateParams{}, err
	}
	rule, err := toRuleParams(req.Rule)
	if err != nil {
		return commitments.CreateParams{}, err
	}
	return commitments.CreateParams{
		AccountID:   req.AccountID,
		Name:        req.Name,
		Category:    model.Category(req.Category),
		Amount:      amount,
		Currency:    req.Currency,
		Status:      model.Status(req.Status),
		DueDate:     dueDate,
		Note:        req.Note,
		IsRecurring: req.IsRecurring,
		Rule:        rule,
	}, nil
}

func toUpdateParams(req updateCommitmentRequest) (commitments.UpdateParams, error) {
	var patch commitments.UpdateParams
	patch.AccountID = req.AccountID
	patch.Name = req.Name
	patch.Note = req.Note
	patch.Currency = req.Currency
	patch.IsRecurring = req.IsRecurring

	if req.Category != nil {
		category := model.Category(*req.Category)
		patch.Category = &category
	}
	if req.Status != nil {
		status := model.Status(*req.Status)
		patch.Status = &status
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			return commitments.UpdateParams{}, err
		}
		patch.Amount = &amount
	}
	if req.DueDate != nil {
		dueDate, err := parseDate("dueDate", *req.DueDate)
		if err != nil {
			return commitments.UpdateParams{}, err
		}
		patch.DueDate = &dueDate
	}
	rule, err := toRuleParams(req.Rule)
	if err != nil {
		return commitments.UpdateParams{}, err
	}
	patch.Rule = rule
	return patch, nil
}

func toRuleParams(req *ruleRequest) (*commitments.RuleParams, error) {
	if req == nil {
		return nil, nil
	}
	rule := &commitments.RuleParams{
		Frequency:  model.Frequency(req.Frequency),
		Interval:   req.Interval,
		ByWeekday:  req.ByWeekday,
		ByMonthDay: req.ByMonthDay,
		Remaining:  req.Remaining,
	}
	if req.StartDate != "" {
		start, err := parseDate("rule.startDate", req.StartDate)
		if err != nil {
			return nil, err
		}
		rule.StartDate = start
	}
	if req.EndDate != "" {
		end, err := parseDate("rule.endDate", req.EndDate)
		if err != nil {
			return nil, err
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, model.Validationf("amount", "not a decimal amount: %v", err)
	}
	return amount, nil
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, model.Validationf(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return ts, nil
}

func toCommitmentResponse(c model.Commitment) commitmentResponse {
	resp := commitmentResponse{
		ID:          c.ID,
		AccountID:   c.AccountID,
		Name:        c.Name,
		Category:    string(c.Category),
		Amount:      decimal.New(c.AmountCents, -2).StringFixed(2),
		Currency:    c.Currency,
		Status:      string(c.Status),
		DueDate:     c.DueDate.Format(dateLayout),
		Note:        c.Note,
		IsRecurring: c.IsRecurring,
	}
	if c.PaidAt != nil {
		resp.PaidAt = c.PaidAt.Format(time.RFC3339)
	}
	if c.Rule != nil {
		rule := &ruleResponse{
			Frequency:  string(c.Rule.Frequency),
			Interval:   c.Rule.Interval,
			ByWeekday:  c.Rule.ByWeekday,
			ByMonthDay: c.Rule.ByMonthDay,
			StartDate:  c.Rule.StartDate.Format(dateLayout),
			Remaining:  c.Rule.Remaining,
		}
		if c.Rule.EndDate != nil {
			rule.EndDate = c.Rule.EndDate.Format(dateLayout)
		}
		resp.Rule = rule
	}
	return resp
}
