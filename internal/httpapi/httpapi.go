package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"radix/backend/internal/domain"
	"radix/backend/internal/ledger"
	"radix/backend/internal/logger"
	"radix/backend/internal/pricing"
	"radix/backend/internal/settlement"
	"radix/backend/internal/store"
)

const (
	msgSettlementRetry = "settlement could not be completed, please retry"
	msgInternal        = "internal server error"
	replayedHeader     = "X-Settlement-Replayed"
)

// Settler is the part of the settlement engine the HTTP layer drives.
type Settler interface {
	Settle(ctx context.Context, req domain.TransactionRequest) (settlement.Result, error)
}

type Options struct {
	AllowedOrigin string
	// Metrics, when set, is served on /metrics without auth.
	Metrics http.Handler
}

type API struct {
	settler       Settler
	ledger        *ledger.Ledger
	repo          store.Repository
	tokens        *TokenChecker
	log           *logger.Logger
	allowedOrigin string
	metrics       http.Handler
	authLimiter   *attemptLimiter
}

func New(settler Settler, repo store.Repository, tokens *TokenChecker, log *logger.Logger, opts Options) *API {
	if log == nil {
		log = logger.Nop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		settler:       settler,
		ledger:        ledger.New(repo),
		repo:          repo,
		tokens:        tokens,
		log:           log,
		allowedOrigin: opts.AllowedOrigin,
		metrics:       opts.Metrics,
		authLimiter:   newAttemptLimiter(10, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.recoverer,
		a.requestID,
		a.logging,
		a.securityHeaders,
	)

	r.Get("/", a.handleIndex)
	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.requireToken)

		r.Post("/transaction", a.handleTransaction)
		r.Get("/accounts", a.handleAccounts)
		r.Get("/accounts/{id}", a.handleAccount)
		r.Get("/transactions", a.handleTransactions)
		r.Get("/transactions/{id}", a.handleTransactionLookup)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Radix</title></head>
<body>
<h1>This is not a website.</h1>
<p>This address serves the point-of-sale registers. There is nothing to see here.</p>
</body>
</html>
`

func (a *API) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateStruct(req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Method.Kind == "" {
		a.writeError(w, r, http.StatusBadRequest, &validationError{Fields: map[string]string{"method": "is required"}})
		return
	}

	result, err := a.settler.Settle(r.Context(), req)
	if err != nil {
		if errors.Is(err, settlement.ErrInvalidRequest) || errors.Is(err, pricing.ErrTotalOverflow) {
			a.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if result.Replayed {
		w.Header().Set(replayedHeader, "true")
	}
	writeJSON(w, http.StatusOK, result.Outcome)
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.ledger.ListAccounts(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid account id %q", chi.URLParam(r, "id")))
		return
	}

	account, err := a.ledger.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, r, http.StatusNotFound, fmt.Errorf("account %d not found", id))
			return
		}
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	history, err := a.repo.ListCompletedTransactions(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

func (a *API) handleTransactionLookup(w http.ResponseWriter, r *http.Request) {
	txID := strings.TrimSpace(chi.URLParam(r, "id"))
	completed, err := a.repo.GetCompletedTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, r, http.StatusNotFound, fmt.Errorf("transaction %s not found", txID))
			return
		}
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError answers 4xx with the error text and 5xx with a generic message.
// The underlying 5xx error is only logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := map[string]any{"error": err.Error()}

	var verr *validationError
	if errors.As(err, &verr) {
		body["details"] = verr.Fields
	}

	if status >= 500 {
		a.log.Error(a.log.WithField(r.Context(), "status", status), "request failed", err)
		msg := msgInternal
		if r.URL.Path == "/transaction" {
			msg = msgSettlementRetry
		}
		body = map[string]any{"error": msg}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
