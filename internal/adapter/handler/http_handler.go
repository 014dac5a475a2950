package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/core/service"
)

// Services are the collaborators the HTTP API delegates to.
type Services struct {
	Orders  *service.OrderService
	Catalog *service.CatalogService
	Carts   *service.CartService
	Cache   *cache.Cache
	Health  func(ctx context.Context) error
}

type HTTPHandler struct {
	svc             Services
	validate        *validator.Validate
	checkoutLimiter *rate.Limiter
	log             logrus.FieldLogger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// StockErrorResponse tells the storefront which line failed and how much
// stock is left so it can offer to adjust the cart.
type StockErrorResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Reason      string `json:"reason"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

type cartRequest struct {
	Items []domain.CartItem `json:"items" validate:"dive"`
}

type checkoutRequest struct {
	Customer domain.Customer `json:"customer"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

type discountRequest struct {
	Value     float64             `json:"value" validate:"gt=0"`
	Type      domain.DiscountType `json:"type" validate:"required,oneof=percentage fixed"`
	ExpiresAt *time.Time          `json:"expiresAt"`
}

type restockRequest struct {
	Stock   *int            `json:"stock" validate:"required,gte=0"`
	Variant *domain.Variant `json:"variant"`
}

// NewHTTPHandler builds the handler. A nil checkoutLimiter disables
// checkout throttling.
func NewHTTPHandler(svc Services, checkoutLimiter *rate.Limiter, log logrus.FieldLogger) *HTTPHandler {
	return &HTTPHandler{
		svc:             svc,
		validate:        validator.New(),
		checkoutLimiter: checkoutLimiter,
		log:             log.WithField("component", "http"),
	}
}

func (h *HTTPHandler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/brands", h.ListBrands).Methods(http.MethodGet)

	api.HandleFunc("/carts/{session}", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/carts/{session}", h.SaveCart).Methods(http.MethodPut)
	api.HandleFunc("/carts/{session}/check", h.CheckCart).Methods(http.MethodPost)
	api.HandleFunc("/carts/{session}/adjust", h.AdjustCart).Methods(http.MethodPost)
	api.HandleFunc("/carts/{session}/checkout", h.limitCheckout(h.Checkout)).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/products", h.SaveProduct).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", h.SaveProduct).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}", h.DeleteProduct).Methods(http.MethodDelete)
	admin.HandleFunc("/products/{id}/stock", h.Restock).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}/discount", h.ApplyDiscount).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}/discount", h.RemoveDiscount).Methods(http.MethodDelete)
	admin.HandleFunc("/discounts/sweep", h.SweepDiscounts).Methods(http.MethodPost)
	admin.HandleFunc("/categories", h.SaveCategory).Methods(http.MethodPost)
	admin.HandleFunc("/brands", h.SaveBrand).Methods(http.MethodPost)
	admin.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/orders/{id}", h.DeleteOrder).Methods(http.MethodDelete)
	admin.HandleFunc("/cache", h.ClearCache).Methods(http.MethodDelete)

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health != nil {
		if err := h.svc.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog.ListProducts(r.Context(), refresh(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: products})
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: p})
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Catalog.ListCategories(r.Context(), refresh(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: categories})
}

func (h *HTTPHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.svc.Catalog.ListBrands(r.Context(), refresh(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: brands})
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.Carts.Get(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: cart})
}

func (h *HTTPHandler) SaveCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.svc.Carts.Save(r.Context(), mux.Vars(r)["session"], req.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: cart})
}

func (h *HTTPHandler) CheckCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.Carts.Get(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	issues, err := h.svc.Orders.CheckStockAvailability(r.Context(), cart.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: issues})
}

// AdjustCart lowers the stored cart to what is in stock right now.
func (h *HTTPHandler) AdjustCart(w http.ResponseWriter, r *http.Request) {
	session := mux.Vars(r)["session"]
	cart, err := h.svc.Carts.Get(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	issues, err := h.svc.Orders.CheckStockAvailability(r.Context(), cart.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	adjusted, err := h.svc.Carts.Save(r.Context(), session, domain.AdjustCart(cart.Items, issues))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: adjusted})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderID, err := h.svc.Orders.Checkout(r.Context(), mux.Vars(r)["session"], req.Customer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "order placed successfully",
		Data:    map[string]string{"orderId": orderID},
	})
}

func (h *HTTPHandler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if !h.decode(w, r, &p) {
		return
	}
	if id, ok := mux.Vars(r)["id"]; ok {
		p.ID = id
	}
	id, err := h.svc.Catalog.SaveProduct(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"id": id}})
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.Restock(r.Context(), mux.Vars(r)["id"], req.Variant, *req.Stock)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: p})
}

func (h *HTTPHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.ApplyDiscount(r.Context(), mux.Vars(r)["id"], req.Value, req.Type, req.ExpiresAt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: p})
}

func (h *HTTPHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.RemoveDiscount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: p})
}

func (h *HTTPHandler) SweepDiscounts(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Catalog.SweepExpiredDiscounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]int{"reverted": n}})
}

func (h *HTTPHandler) SaveCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if !h.decode(w, r, &c) {
		return
	}
	id, err := h.svc.Catalog.SaveCategory(r.Context(), c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"id": id}})
}

func (h *HTTPHandler) SaveBrand(w http.ResponseWriter, r *http.Request) {
	var b domain.Brand
	if !h.decode(w, r, &b) {
		return
	}
	id, err := h.svc.Catalog.SaveBrand(r.Context(), b)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"id": id}})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListOrders(r.Context(), refresh(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: orders})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: order})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.Orders.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: order})
}

func (h *HTTPHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Orders.DeleteOrder(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (h *HTTPHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cache != nil {
		h.svc.Cache.ClearAll(r.Context())
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (h *HTTPHandler) limitCheckout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.checkoutLimiter != nil && !h.checkoutLimiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, Response{Message: "too many checkout attempts"})
			return
		}
		next(w, r)
	}
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
			return false
		}
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var stockErr *service.StockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, StockErrorResponse{
			Message:     stockErr.Error(),
			Reason:      stockReason(stockErr.Err),
			ProductID:   stockErr.ProductID,
			ProductName: stockErr.ProductName,
			Size:        stockErr.Size,
			Color:       stockErr.Color,
			Requested:   stockErr.Requested,
			Available:   stockErr.Available,
		})
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrOrderNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidCart), errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrVariantRequired),
		errors.Is(err, domain.ErrInvalidProduct):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrTransientConflict):
		status, message = http.StatusServiceUnavailable, "store busy, please retry"
	default:
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, Response{Message: message})
}

func stockReason(err error) string {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		return string(domain.ReasonProductNotFound)
	case errors.Is(err, service.ErrVariantUnavailable), errors.Is(err, service.ErrVariantRequired):
		return string(domain.ReasonVariantUnavailable)
	default:
		return string(domain.ReasonInsufficientStock)
	}
}

func refresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "1" || v == "true"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
