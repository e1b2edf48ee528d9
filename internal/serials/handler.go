package serials

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// Handler wires HTTP endpoints for the serial registry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs serials handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers serial routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.register)
	r.Get("/{serialNumber}", h.get)
	r.Get("/{serialNumber}/movements", h.movements)
	r.Post("/{serialNumber}/transition", h.transition)
}

type registerRequest struct {
	SerialNumber string  `json:"serial_number" validate:"required"`
	IMEI         string  `json:"imei"`
	ProductID    int64   `json:"product_id" validate:"required"`
	WarehouseID  int64   `json:"warehouse_id" validate:"required"`
	CostPrice    float64 `json:"cost_price" validate:"gte=0"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	item, err := h.service.Register(r.Context(), RegisterInput{
		SerialNumber: req.SerialNumber,
		IMEI:         req.IMEI,
		ProductID:    req.ProductID,
		WarehouseID:  req.WarehouseID,
		CostPrice:    req.CostPrice,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.logger.Error("register serial failed", slog.String("serial", req.SerialNumber), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "serialNumber"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.service.Movements(r.Context(), chi.URLParam(r, "serialNumber"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type transitionRequest struct {
	Status      string `json:"status" validate:"required"`
	WarehouseID int64  `json:"warehouse_id"`
	Reference   string `json:"reference"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	item, err := h.service.Transition(r.Context(), chi.URLParam(r, "serialNumber"), Status(req.Status), TransitionInput{
		WarehouseID:  req.WarehouseID,
		RefDocNumber: req.Reference,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.logger.Error("serial transition failed", slog.String("serial", chi.URLParam(r, "serialNumber")), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Search: q.Get("search")}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list serials failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"serials": items, "pagination": page})
}
