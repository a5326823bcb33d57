package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"meridian/internal/pkg/logger"
	"meridian/internal/service/order/application"
	"meridian/internal/service/order/domain"
)

const serviceName = "order-service"

// OrderHandler 封装了 order 服务的 HTTP 处理器。
// 只做解码、调用应用服务和错误映射，不包含业务规则。
type OrderHandler struct {
	service *application.OrderApplicationService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(service *application.OrderApplicationService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("POST /orders/{id}/pay", h.payOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /orders/{id}/ship", h.shipOrder)
	mux.HandleFunc("POST /orders/{id}/deliver", h.markDelivered)
	mux.HandleFunc("POST /orders/{id}/return", h.requestReturn)
	mux.HandleFunc("POST /orders/{id}/return/approve", h.approveReturn)
	mux.HandleFunc("POST /orders/{id}/return/reject", h.rejectReturn)

	mux.HandleFunc("POST /flash-sales", h.createFlashSale)
	mux.HandleFunc("GET /flash-sales/{id}", h.getFlashSale)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || len(req.Items) == 0 || req.Currency == "" {
		http.Error(w, "userId, currency and items are required", http.StatusBadRequest)
		return
	}

	view, err := h.service.CreateOrder(ctx, &req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	views, err := h.service.ListOrders(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.service.GetOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.service.PayOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	view, err := h.service.CancelOrder(ctx, r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req application.ShipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrderID = r.PathValue("id")

	view, err := h.service.ShipOrder(ctx, &req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) markDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.service.MarkDelivered(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req application.ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrderID = r.PathValue("id")

	view, err := h.service.RequestReturn(ctx, &req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) approveReturn(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req application.ApproveReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrderID = r.PathValue("id")

	view, err := h.service.ApproveReturn(ctx, &req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req struct {
		Note string `json:"note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	view, err := h.service.RejectReturn(ctx, r.PathValue("id"), req.Note)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) createFlashSale(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req application.CreateFlashSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.TotalQuantity <= 0 {
		http.Error(w, "productId and positive totalQuantity are required", http.StatusBadRequest)
		return
	}

	view, err := h.service.CreateFlashSale(ctx, &req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *OrderHandler) getFlashSale(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	view, err := h.service.GetFlashSale(ctx, r.PathValue("id"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// extract 从请求头恢复追踪上下文。
func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// writeDomainError 把领域错误映射为对外的状态码。
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var invalidState *domain.InvalidOrderStateError

	switch {
	case errors.As(err, &invalidState):
		http.Error(w, invalidState.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrFlashSaleStockExhausted),
		errors.Is(err, domain.ErrStockReservationFailed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrFlashSaleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrFlashSaleNotActive):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
