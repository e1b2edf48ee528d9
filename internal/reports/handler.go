package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the reporting views.
type Handler struct {
	logger  *slog.Logger
	service *Service
	printer *message.Printer
}

// NewHandler constructs reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, printer: message.NewPrinter(language.English)}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/trial-balance/export.csv", h.trialBalanceCSV)
	r.Get("/valuation", h.valuation)
	r.Get("/profit-loss", h.profitLoss)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := parseDate(r.URL.Query().Get("as_of"))
	var zeroOrAsOf time.Time
	if asOf != nil {
		zeroOrAsOf = *asOf
	}
	result, err, _ := singleflightBuild(r.Context(), "tb:"+r.URL.RawQuery, func(ctx context.Context) (interface{}, error) {
		return h.service.TrialBalance(ctx, zeroOrAsOf)
	})
	if err != nil {
		h.logger.Error("build trial balance failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) trialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	asOf := parseDate(r.URL.Query().Get("as_of"))
	var zeroOrAsOf time.Time
	if asOf != nil {
		zeroOrAsOf = *asOf
	}
	tb, err := h.service.TrialBalance(r.Context(), zeroOrAsOf)
	if err != nil {
		h.logger.Error("build trial balance failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	_ = writer.Write([]string{"Code", "Name", "Type", "Debit", "Credit"})
	for _, line := range tb.Lines {
		_ = writer.Write([]string{
			line.Code,
			line.Name,
			string(line.Type),
			h.printer.Sprintf("%.2f", line.Debit),
			h.printer.Sprintf("%.2f", line.Credit),
		})
	}
	_ = writer.Write([]string{"", "Total", "", h.printer.Sprintf("%.2f", tb.TotalDebit), h.printer.Sprintf("%.2f", tb.TotalCredit)})
	writer.Flush()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=trial_balance.csv")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	result, err, _ := singleflightBuild(r.Context(), "valuation:"+r.URL.RawQuery, func(ctx context.Context) (interface{}, error) {
		return h.service.Valuation(ctx, warehouseID)
	})
	if err != nil {
		h.logger.Error("build valuation failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) profitLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := parseDate(q.Get("date_from"))
	to := parseDate(q.Get("date_to"))
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	result, err, _ := singleflightBuild(r.Context(), "pl:"+r.URL.RawQuery, func(ctx context.Context) (interface{}, error) {
		return h.service.ProfitLoss(ctx, from, to)
	})
	if err != nil {
		h.logger.Error("build profit and loss failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &parsed
}
