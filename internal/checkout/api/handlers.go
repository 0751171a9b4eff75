package api

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paybridge/internal/checkout"
	"paybridge/internal/checkout/builder"
	"paybridge/internal/common/api"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// Handler handles checkout HTTP requests
type Handler struct {
	service *checkout.Service
}

// NewHandler creates a new checkout handler
func NewHandler(service *checkout.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the checkout and order routes, mounted under /api/v1
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Customer-facing checkout
	r.Post("/checkout/{orderID}/pay", h.Pay)
	r.Get("/checkout/finalize", h.Finalize)

	// Merchant order updates
	r.Post("/orders/{orderNumber}/shipment", h.Ship)
	r.Post("/orders/{orderNumber}/cancel", h.Cancel)

	return r
}

// PayRequest is the API request for starting a payment
type PayRequest struct {
	TransactionID string `json:"transaction_id" validate:"omitempty,max=64"`
}

// Pay handles POST /checkout/{orderID}/pay
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		api.BadRequest(w, "order ID required")
		return
	}

	var req PayRequest
	if err := api.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.ValidationError(w, err)
		return
	}

	result, err := h.service.Pay(r.Context(), checkout.PayRequest{
		OrderID:       orderID,
		TransactionID: req.TransactionID,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		writePaymentError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, result)
}

// FinalizeResponse reports what the customer's return did
type FinalizeResponse struct {
	OrderNumber string `json:"order_number"`
	Cancelled   bool   `json:"cancelled"`
}

// Finalize handles GET /checkout/finalize
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderNumber := q.Get("transactionid")
	if orderNumber == "" {
		api.BadRequest(w, "transactionid required")
		return
	}
	cancelled := q.Get("cancel") == "1"

	if err := h.service.Finalize(r.Context(), orderNumber, q.Get("order_transaction_id"), cancelled); err != nil {
		if domain.NotFound(err) || errors.Is(err, checkout.ErrTransactionNotFound) {
			api.NotFound(w, "order not found")
			return
		}
		api.InternalError(w, "failed to finalize payment")
		return
	}

	api.WriteData(w, http.StatusOK, FinalizeResponse{OrderNumber: orderNumber, Cancelled: cancelled})
}

// ShipRequest is the API request for pushing shipment data
type ShipRequest struct {
	TrackTraceCode string `json:"tracktrace_code" validate:"required,max=100"`
	Carrier        string `json:"carrier" validate:"required,max=100"`
	InvoiceID      string `json:"invoice_id" validate:"omitempty,max=100"`
	ShipDate       string `json:"ship_date" validate:"omitempty,datetime=2006-01-02"`
}

// Ship handles POST /orders/{orderNumber}/shipment
func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	var req ShipRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	var shipDate time.Time
	if req.ShipDate != "" {
		shipDate, _ = time.Parse("2006-01-02", req.ShipDate)
	}

	err := h.service.Ship(r.Context(), checkout.ShipRequest{
		OrderNumber:    orderNumber,
		TrackTraceCode: req.TrackTraceCode,
		Carrier:        req.Carrier,
		InvoiceID:      req.InvoiceID,
		ShipDate:       shipDate,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelRequest is the API request for cancelling a gateway order
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// Cancel handles POST /orders/{orderNumber}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	var req CancelRequest
	if err := api.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.ValidationError(w, err)
		return
	}

	if err := h.service.CancelPending(r.Context(), orderNumber, req.Reason); err != nil {
		writeGatewayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writePaymentError keeps gateway and data faults out of the customer-facing message.
func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case domain.NotFound(err), errors.Is(err, checkout.ErrTransactionNotFound):
		api.NotFound(w, "order not found")
	case errors.Is(err, checkout.ErrUnknownGateway):
		api.BadRequest(w, "payment method is not available")
	case errors.Is(err, builder.ErrInvalidRequestData), errors.Is(err, checkout.ErrPaymentFailed):
		api.WriteError(w, http.StatusBadGateway, api.ErrCodePaymentFailed, "The payment could not be started. Please try again or choose another payment method.")
	default:
		api.InternalError(w, "failed to start payment")
	}
}

func writeGatewayError(w http.ResponseWriter, err error) {
	var apiErr *gateway.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		api.NotFound(w, "order not known to the gateway")
	case errors.Is(err, gateway.ErrCommunication):
		api.WriteError(w, http.StatusBadGateway, api.ErrCodeGatewayUnavail, "payment gateway unavailable")
	default:
		api.InternalError(w, "failed to update order")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
