package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-placement/internal/order/application"
	"github.com/dmehra2102/order-placement/internal/order/domain"
	"github.com/dmehra2102/order-placement/pkg/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	maxBodyBytes     = 1 << 20
	completeAttempts = 3
)

type OrderService interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

// Idempotency is satisfied by *idempotency.Store.
type Idempotency interface {
	RequestKey(scope, key string) string
	Begin(ctx context.Context, key, fingerprint string) (idempotency.State, string, error)
	Complete(ctx context.Context, key, fingerprint, result string) error
	Abort(ctx context.Context, key string) error
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	idem    Idempotency
	tracer  trace.Tracer
}

// NewHandler builds the order routes. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(log *slog.Logger, service OrderService, idem Idempotency) *Handler {
	return &Handler{
		log:     log,
		service: service,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "POST /orders")
	defer span.End()

	var req CreateOrderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: err.Error()})
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" || h.idem == nil {
		h.place(ctx, w, req, claim{})
		return
	}

	span.SetAttributes(attribute.String("idempotency.key", key))
	c := claim{key: h.idem.RequestKey("orders", key), fingerprint: req.fingerprint()}
	state, orderID, err := h.idem.Begin(ctx, c.key, c.fingerprint)
	if err != nil {
		h.log.ErrorContext(ctx, "idempotency check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{Error: "idempotency_unavailable", Message: "try again later"})
		return
	}

	switch state {
	case idempotency.InFlight:
		writeError(w, http.StatusConflict, ErrorResponse{Error: "request_in_progress", Message: "a request with this Idempotency-Key is still being processed"})
	case idempotency.Mismatch:
		writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "idempotency_key_reused", Message: "Idempotency-Key was already used with a different request body"})
	case idempotency.Completed:
		o, err := h.service.GetOrder(ctx, orderID)
		if err != nil {
			h.writeServiceError(ctx, w, err)
			return
		}
		w.Header().Set(ReplayedHeader, "true")
		writeJSON(w, http.StatusOK, newOrderResponse(o))
	default:
		h.place(ctx, w, req, c)
	}
}

// claim is an Idempotency-Key owned by the current request. The zero value
// means no key was sent.
type claim struct {
	key         string
	fingerprint string
}

// place runs CreateOrder and, when a claim is held, records or releases it.
func (h *Handler) place(ctx context.Context, w http.ResponseWriter, req CreateOrderRequest, c claim) {
	o, err := h.service.CreateOrder(ctx, req.command())
	if err != nil {
		if c.key != "" {
			if aerr := h.idem.Abort(context.WithoutCancel(ctx), c.key); aerr != nil {
				h.log.WarnContext(ctx, "idempotency release failed", "err", aerr)
			}
		}
		h.writeServiceError(ctx, w, err)
		return
	}

	if c.key != "" {
		h.complete(context.WithoutCancel(ctx), c, o.ID)
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// complete records orderID under the claim. Once the claim's pending lease
// runs out a retry with the same key would place a second order.
func (h *Handler) complete(ctx context.Context, c claim, orderID string) {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = h.idem.Complete(ctx, c.key, c.fingerprint, orderID); err == nil {
			return
		}
	}
	h.log.ErrorContext(ctx, "idempotency record failed", "order_id", orderID, "attempts", completeAttempts, "err", err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GET /orders/{id}")
	defer span.End()

	o, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var perr *domain.Error
	if !errors.As(err, &perr) {
		h.log.ErrorContext(ctx, "request failed", "err", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal server error"})
		return
	}

	resp := ErrorResponse{Error: string(perr.Kind), Message: perr.Message, ProductIDs: perr.ProductIDs}
	status := statusFor(perr)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(ctx, "request failed", "kind", perr.Kind, "err", err)
	}
	writeError(w, status, resp)
}

func statusFor(e *domain.Error) int {
	switch e.Kind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindCustomerNotFound, domain.KindNoProductsExist, domain.KindProductNotFound, domain.KindOrderNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock:
		return http.StatusConflict
	case domain.KindStockUpdateFailed:
		if errors.Is(e, domain.ErrStockConflict) {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
