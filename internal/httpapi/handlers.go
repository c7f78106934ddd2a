package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"medshelf/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.registerLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many registration attempts"))
		return
	}

	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	owner, err := a.service.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, owner)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	owner, err := a.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		a.logger.Info("login rejected", zap.String("username", req.Username), zap.String("client", clientKey(r)))
		a.fail(w, r, err)
		return
	}

	resp, err := a.auth.Issue(owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	owner, err := a.service.Owner(r.Context(), ownerIDFrom(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, owner)
}

func (a *API) handleListMedicines(w http.ResponseWriter, r *http.Request) {
	meds, err := a.service.ListStock(r.Context(), ownerIDFrom(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": meds})
}

func (a *API) handleAddMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.AddStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	med, err := a.service.AddStock(r.Context(), ownerIDFrom(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

func (a *API) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	med, err := a.service.GetMedicine(r.Context(), ownerIDFrom(r.Context()), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req domain.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	med, err := a.service.Restock(r.Context(), ownerIDFrom(r.Context()), id, req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (a *API) handlePurge(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.PurgeExpired(r.Context(), ownerIDFrom(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Alerts(r.Context(), ownerIDFrom(r.Context()), r.URL.Query().Get("filter"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.service.Dashboard(r.Context(), ownerIDFrom(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req domain.SuggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, err := a.service.SuggestDispense(r.Context(), ownerIDFrom(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleCommitSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CommitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.CommitSale(r.Context(), ownerIDFrom(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	sales, err := a.service.ListSales(r.Context(), ownerIDFrom(r.Context()), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), ownerIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	name, text, err := a.service.Receipt(r.Context(), ownerIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
