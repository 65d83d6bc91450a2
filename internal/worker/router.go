package worker

import (
	"context"
	"log/slog"

	"github.com/baharkarakas/ledgerq/internal/models"
)

// Outcome is the normalized result of one task. Retry marks transient
// infrastructure failures: the loop resubmits those instead of acking, up to
// the attempt budget. Business failures and validation failures never set it.
type Outcome struct {
	Status string `json:"status"` // "success" | "error"
	Detail string `json:"detail,omitempty"`
	Retry  bool   `json:"-"`

	Users []models.AccountSummary `json:"users,omitempty"`
}

func success() Outcome                { return Outcome{Status: "success"} }
func failure(detail string) Outcome   { return Outcome{Status: "error", Detail: detail} }
func retryable(detail string) Outcome { return Outcome{Status: "error", Detail: detail, Retry: true} }

type HandlerFunc func(ctx context.Context, env models.TaskEnvelope) Outcome

// Router maps task tags to handlers. A handler can fail or panic; neither
// escapes Route — every path collapses into an Outcome.
type Router struct {
	handlers map[models.TaskType]HandlerFunc
	log      *slog.Logger
}

func NewRouter(h *Handlers, log *slog.Logger) *Router {
	return &Router{
		log: log,
		handlers: map[models.TaskType]HandlerFunc{
			models.TaskRegisterUser:      h.RegisterUser,
			models.TaskCreateTransaction: h.CreateTransaction,
			models.TaskGetUsers:          h.GetUsers,
		},
	}
}

func (r *Router) Route(ctx context.Context, env models.TaskEnvelope) (out Outcome) {
	handler, ok := r.handlers[env.Task]
	if !ok {
		r.log.Warn("unknown task", "task", env.Task)
		return failure("unknown task")
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", "task", env.Task, "err", rec)
			out = failure("internal error")
		}
	}()
	return handler(ctx, env)
}
