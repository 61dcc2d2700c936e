package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/services"
	"tripsplit/internal/wire"
)

type resolveRequest struct {
	HomeCurrency string             `json:"homeCurrency"`
	Participants []wire.Participant `json:"participants"`
	Expense      wire.Expense       `json:"expense"`
}

type resolveResponse struct {
	ExpenseID string      `json:"expenseId"`
	Owed      []wire.Owed `json:"owed"`
}

type summaryRequest struct {
	wire.Snapshot
	Budgets []wire.Budget `json:"budgets"`
}

type validationError struct {
	ExpenseID string `json:"expenseId"`
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
}

type validateResponse struct {
	Valid  bool              `json:"valid"`
	Errors []validationError `json:"errors"`
}

type errorBody struct {
	Error     string `json:"error"`
	ExpenseID string `json:"expenseId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleResolveSplit(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.HomeCurrency == "" {
		req.HomeCurrency = s.defaultHome
	}
	home := core.NormalizeCurrency(req.HomeCurrency)
	if err := home.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := req.Expense.ToCore(home)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	owed, err := s.svc.ResolveSplit(r.Context(), home, wire.ParticipantsToCore(req.Participants), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{ExpenseID: e.ID, Owed: wire.FromOwed(owed, home)})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	balances, err := s.svc.Balances(r.Context(), snap)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromBalances(balances, snap.HomeCurrency))
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Settle(r.Context(), snap)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromSettlements(res.Settlements, snap.HomeCurrency))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	problems, err := s.svc.Validate(r.Context(), snap)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := validateResponse{Valid: len(problems) == 0, Errors: []validationError{}}
	for _, p := range problems {
		ve := validationError{ExpenseID: p.ExpenseID, Error: p.Err.Error()}
		var inv *core.InvalidSplitError
		if errors.As(p.Err, &inv) {
			ve.Reason = inv.Reason
		}
		resp.Errors = append(resp.Errors, ve)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := req.Snapshot.WithDefaultHome(s.defaultHome).ToCore()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	budgets, err := wire.BudgetsToCore(req.Budgets, snap.HomeCurrency)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, err := s.svc.Summarize(r.Context(), snap, budgets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromSummary(summary))
}

func (s *Server) decodeSnapshot(w http.ResponseWriter, r *http.Request) (core.Snapshot, bool) {
	var body wire.Snapshot
	if err := decodeJSON(w, r, s.maxBodyBytes, &body); err != nil {
		s.writeError(w, r, err)
		return core.Snapshot{}, false
	}
	snap, err := body.WithDefaultHome(s.defaultHome).ToCore()
	if err != nil {
		s.writeError(w, r, err)
		return core.Snapshot{}, false
	}
	return snap, true
}

// writeError maps an error to a status: invalid splits are 422 with the
// offending expense, other bad input is 400, everything else is 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr *requestError
		inv    *core.InvalidSplitError
	)
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.status, errorBody{Error: reqErr.msg})
	case errors.As(err, &inv):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), ExpenseID: inv.ExpenseID, Reason: inv.Reason})
	case services.IsInputError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled"})
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, r.URL.Path, log.ErrorTypeInternal, nil)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
