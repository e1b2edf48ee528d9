package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockbooks/stockbooks/internal/accounting"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/observability"
	"github.com/stockbooks/stockbooks/internal/reports"
	"github.com/stockbooks/stockbooks/internal/sales"
	"github.com/stockbooks/stockbooks/internal/serials"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	InventoryHandler  *inventory.Handler
	SerialsHandler    *serials.Handler
	SalesHandler      *sales.Handler
	AccountingHandler *accounting.Handler
	ReportsHandler    *reports.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with stockbooks defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			params.InventoryHandler.MountRoutes(r)
		})
		r.Route("/serials", func(r chi.Router) {
			params.SerialsHandler.MountRoutes(r)
		})
		r.Route("/sales", func(r chi.Router) {
			params.SalesHandler.MountRoutes(r)
		})
		r.Route("/accounting", func(r chi.Router) {
			params.AccountingHandler.MountRoutes(r)
		})
		r.Route("/reports", func(r chi.Router) {
			params.ReportsHandler.MountRoutes(r)
		})
	})

	return r
}
