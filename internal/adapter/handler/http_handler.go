package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/core/service"
	"github.com/rl1809/benefit-ledger/internal/port"
)

const (
	actorHeader       = "X-Actor-ID"
	idempotencyHeader = "Idempotency-Key"
	retryAfterSeconds = 1
)

// Services groups the ledger services the transports expose.
type Services struct {
	Catalog     *service.CatalogService
	Allocations *service.AllocationService
	Deliveries  *service.DeliveryService
	Queries     *service.QueryService
	Checker     *service.InvariantChecker
}

type HTTPHandler struct {
	svc         Services
	idempotency port.CacheRepository
	logger      *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type CreateBenefitHTTPRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	AgeRange     domain.AgeRange `json:"age_range"`
	InitialStock int             `json:"initial_stock"`
}

type UpdateBenefitHTTPRequest struct {
	Name     *string          `json:"name"`
	Category *string          `json:"category"`
	AgeRange *domain.AgeRange `json:"age_range"`
}

type QuantityHTTPRequest struct {
	Quantity int `json:"quantity"`
}

type CorrectStockHTTPRequest struct {
	TotalStock int `json:"total_stock"`
}

type AvailabilityHTTPRequest struct {
	Available bool `json:"available"`
}

type AssignmentHTTPRequest struct {
	DelegateID string `json:"delegate_id"`
	BenefitID  string `json:"benefit_id"`
	Quantity   int    `json:"quantity"`
}

type DeliverHTTPRequest struct {
	DelegateID string           `json:"delegate_id"`
	BenefitID  string           `json:"benefit_id"`
	Recipient  domain.Recipient `json:"recipient"`
	Notes      string           `json:"notes"`
}

type CheckHTTPResponse struct {
	Consistent bool                `json:"consistent"`
	Violations []service.Violation `json:"violations"`
}

// NewHTTPHandler builds the HTTP transport. idempotency may be nil, in which
// case Idempotency-Key headers are ignored.
func NewHTTPHandler(svc Services, idempotency port.CacheRepository, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{svc: svc, idempotency: idempotency, logger: logger}
}

// Routes mounts the API. metrics serves /metrics when non-nil.
func (h *HTTPHandler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.logger))

	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(actorContext)

		r.Route("/benefits", func(r chi.Router) {
			r.Post("/", h.CreateBenefit)
			r.Get("/", h.ListBenefits)
			r.Route("/{benefitID}", func(r chi.Router) {
				r.Get("/", h.GetBenefit)
				r.Patch("/", h.UpdateBenefit)
				r.Post("/restock", h.Restock)
				r.Post("/correct", h.CorrectStock)
				r.Put("/availability", h.SetAvailability)
				r.Post("/retire", h.Retire)
				r.Get("/allocations", h.ListAllocationsByBenefit)
				r.Get("/deliveries", h.ListDeliveriesByBenefit)
			})
		})

		r.Post("/assignments", h.Assign)
		r.Post("/assignments/revoke", h.RevokeAssignment)

		r.Route("/delegates/{delegateID}", func(r chi.Router) {
			r.Post("/reclaim", h.ReclaimDelegate)
			r.Get("/allocations", h.ListAllocationsByDelegate)
			r.Get("/allocations/{benefitID}", h.GetAllocation)
			r.Get("/deliveries", h.ListDeliveriesByDelegate)
		})

		r.Post("/deliveries", h.Deliver)
		r.Get("/deliveries/{deliveryID}", h.GetDelivery)
		r.Delete("/deliveries/{deliveryID}", h.ReverseDelivery)

		r.Get("/recipients/{recipientType}/{recipientID}/deliveries", h.ListDeliveriesByRecipient)
		r.Get("/ledger/check", h.Check)
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateBenefit(w http.ResponseWriter, r *http.Request) {
	var req CreateBenefitHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.CreateBenefit(ctx, service.CreateBenefitRequest{
			Name:         req.Name,
			Category:     req.Category,
			AgeRange:     req.AgeRange,
			InitialStock: req.InitialStock,
		})
	})
}

func (h *HTTPHandler) ListBenefits(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) { return h.svc.Queries.ListBenefits(r.Context()) })
}

func (h *HTTPHandler) GetBenefit(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.GetBenefit(r.Context(), chi.URLParam(r, "benefitID"))
	})
}

func (h *HTTPHandler) UpdateBenefit(w http.ResponseWriter, r *http.Request) {
	var req UpdateBenefitHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.UpdateDetails(ctx, chi.URLParam(r, "benefitID"), service.BenefitDetails{
			Name:     req.Name,
			Category: req.Category,
			AgeRange: req.AgeRange,
		})
	})
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req QuantityHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.Restock(ctx, chi.URLParam(r, "benefitID"), req.Quantity)
	})
}

func (h *HTTPHandler) CorrectStock(w http.ResponseWriter, r *http.Request) {
	var req CorrectStockHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.CorrectStock(ctx, chi.URLParam(r, "benefitID"), req.TotalStock)
	})
}

func (h *HTTPHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.SetAvailability(ctx, chi.URLParam(r, "benefitID"), req.Available)
	})
}

func (h *HTTPHandler) Retire(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Catalog.Retire(ctx, chi.URLParam(r, "benefitID"))
	})
}

func (h *HTTPHandler) ListAllocationsByBenefit(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.ListAllocationsByBenefit(r.Context(), chi.URLParam(r, "benefitID"))
	})
}

func (h *HTTPHandler) ListDeliveriesByBenefit(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.ListDeliveriesByBenefit(r.Context(), chi.URLParam(r, "benefitID"))
	})
}

func (h *HTTPHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignmentHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Allocations.Assign(ctx, req.DelegateID, req.BenefitID, req.Quantity)
	})
}

func (h *HTTPHandler) RevokeAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Allocations.RevokeAssignment(ctx, req.DelegateID, req.BenefitID, req.Quantity)
	})
}

func (h *HTTPHandler) ReclaimDelegate(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Allocations.ReclaimDelegate(ctx, chi.URLParam(r, "delegateID"))
	})
}

func (h *HTTPHandler) ListAllocationsByDelegate(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.ListAllocationsByDelegate(r.Context(), chi.URLParam(r, "delegateID"))
	})
}

func (h *HTTPHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.GetAllocation(r.Context(), chi.URLParam(r, "delegateID"), chi.URLParam(r, "benefitID"))
	})
}

func (h *HTTPHandler) ListDeliveriesByDelegate(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.ListDeliveriesByDelegate(r.Context(), chi.URLParam(r, "delegateID"))
	})
}

func (h *HTTPHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var req DeliverHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		return h.svc.Deliveries.Deliver(ctx, service.DeliverRequest{
			DelegateID: req.DelegateID,
			BenefitID:  req.BenefitID,
			Recipient:  req.Recipient,
			Notes:      req.Notes,
		})
	})
}

func (h *HTTPHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		return h.svc.Queries.GetDelivery(r.Context(), chi.URLParam(r, "deliveryID"))
	})
}

func (h *HTTPHandler) ReverseDelivery(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.svc.Deliveries.ReverseDelivery(ctx, chi.URLParam(r, "deliveryID"))
	})
}

func (h *HTTPHandler) ListDeliveriesByRecipient(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		rt, err := domain.ParseRecipientType(chi.URLParam(r, "recipientType"))
		if err != nil {
			return nil, err
		}
		return h.svc.Queries.ListDeliveriesByRecipient(r.Context(), rt, chi.URLParam(r, "recipientID"))
	})
}

func (h *HTTPHandler) Check(w http.ResponseWriter, r *http.Request) {
	h.query(w, func() (any, error) {
		violations, err := h.svc.Checker.Check(r.Context(), r.URL.Query().Get("benefit_id"))
		if err != nil {
			return nil, err
		}
		if violations == nil {
			violations = []service.Violation{}
		}
		return CheckHTTPResponse{Consistent: len(violations) == 0, Violations: violations}, nil
	})
}

// command runs a mutating operation, claiming the request's idempotency key
// first and releasing it if the operation fails.
func (h *HTTPHandler) command(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	key := r.Header.Get(idempotencyHeader)
	if key != "" && h.idempotency != nil {
		key = r.Method + ":" + r.URL.Path + ":" + key
		ok, err := h.idempotency.SetIdempotency(ctx, key)
		if err != nil {
			h.writeError(w, domain.Internal(err, "idempotency check failed"))
			return
		}
		if !ok {
			h.writeError(w, domain.Conflict("duplicate request"))
			return
		}
	} else {
		key = ""
	}

	data, err := fn(ctx)
	if err != nil {
		if key != "" {
			if rerr := h.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); rerr != nil {
				h.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, Response{Success: true, Data: data})
}

func (h *HTTPHandler) query(w http.ResponseWriter, fn func() (any, error)) {
	data, err := fn()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := httpStatus(kind)
	message := domain.MessageOf(err)
	if status >= http.StatusInternalServerError && kind != domain.KindBusy {
		h.logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
		if kind == domain.KindInternal {
			message = "internal error"
		}
	}
	if kind == domain.KindBusy {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, Response{Success: false, Error: string(kind), Message: message})
}

func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   string(domain.KindValidation),
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithActor(r.Context(), r.Header.Get(actorHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
