package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledgerq/internal/api/httpx"
	"github.com/baharkarakas/ledgerq/internal/api/validate"
	"github.com/baharkarakas/ledgerq/internal/auth"
	"github.com/baharkarakas/ledgerq/internal/metrics"
	"github.com/baharkarakas/ledgerq/internal/middleware"
	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/baharkarakas/ledgerq/internal/queue"
	repo "github.com/baharkarakas/ledgerq/internal/repository"
)

// Deps are the front-end's collaborators. The front-end never executes
// financial operations itself: register and transfer requests are validated,
// wrapped in a task envelope, and enqueued; the caller gets "queued" back.
type Deps struct {
	Accounts repo.Accounts
	Ledger   repo.Ledger
	Queue    queue.Queue
	Tokens   *auth.TokenManager
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(100))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	enqueue := func(w http.ResponseWriter, r *http.Request, env models.TaskEnvelope) {
		body, err := env.Encode()
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
			return
		}
		if err := d.Queue.Publish(r.Context(), body); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "queue_unavailable", "failed to queue task", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
			var req models.RegisterUserData
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
				return
			}
			var errs validate.Errs
			if e := validate.MinLen("username", req.Username, 3); e != nil {
				errs = append(errs, *e)
			}
			if e := validate.MinLen("password", req.Password, 4); e != nil {
				errs = append(errs, *e)
			}
			if len(errs) > 0 {
				httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
				return
			}
			data, _ := json.Marshal(req)
			enqueue(w, r, models.TaskEnvelope{Task: models.TaskRegisterUser, Data: data})
		})

		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req struct{ Username, Password string }
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
				return
			}
			acct, err := d.Accounts.GetByUsername(r.Context(), req.Username)
			if err != nil || auth.VerifyPassword(req.Password, acct.PasswordHash) != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
				return
			}
			tok, err := d.Tokens.Generate(acct.ID, acct.Username)
			if err != nil {
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"token": tok})
		})

		// ---------- authenticated ----------
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.Tokens))

			r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
				accounts, err := d.Accounts.List(r.Context())
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to fetch users", nil)
					return
				}
				out := make([]models.AccountSummary, 0, len(accounts))
				for _, a := range accounts {
					out = append(out, models.AccountSummary{ID: a.ID, Username: a.Username})
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
			})

			r.Get("/balances/{id}", func(w http.ResponseWriter, r *http.Request) {
				acct, err := d.Accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
				if errors.Is(err, repo.ErrAccountNotFound) {
					httpx.WriteError(w, http.StatusNotFound, "not_found", "account not found", nil)
					return
				}
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": acct.ID, "balance": acct.Balance})
			})

			// Admin deposit; test fixtures and the load generator use this to
			// fund accounts.
			r.Post("/balances/{id}/credit", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Amount decimal.Decimal `json:"amount"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Amount.IsPositive() {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "amount must be > 0", nil)
					return
				}
				acct, err := d.Accounts.Credit(r.Context(), chi.URLParam(r, "id"), req.Amount)
				if errors.Is(err, repo.ErrAccountNotFound) {
					httpx.WriteError(w, http.StatusNotFound, "not_found", "account not found", nil)
					return
				}
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": acct.ID, "balance": acct.Balance})
			})

			r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
				var req models.CreateTransactionData
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "bad request", nil)
					return
				}
				if err := req.Validate(); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error(), nil)
					return
				}
				if req.SenderID == req.ReceiverID {
					httpx.WriteError(w, http.StatusBadRequest, "validation", "you can't send money to yourself", nil)
					return
				}
				data, _ := json.Marshal(req)
				enqueue(w, r, models.TaskEnvelope{
					Task:           models.TaskCreateTransaction,
					Data:           data,
					IdempotencyKey: r.Header.Get("Idempotency-Key"),
				})
			})

			r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
				accountID := r.URL.Query().Get("account_id")
				if accountID == "" {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "account_id required", nil)
					return
				}
				limit, offset := 50, 0
				if v := r.URL.Query().Get("limit"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n > 0 {
						limit = n
					}
				}
				if v := r.URL.Query().Get("offset"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n >= 0 {
						offset = n
					}
				}
				txs, err := d.Ledger.ListByAccount(r.Context(), accountID, limit, offset)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, txs)
			})
		})
	})

	return r
}
