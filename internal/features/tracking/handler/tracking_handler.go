package handler

import (
	"errors"
	"net/http"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/logger"
	ordersdomain "order-tracker/internal/features/orders/domain"
	"order-tracker/internal/features/tracking/domain"
	"order-tracker/internal/features/tracking/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TrackingHandler handles HTTP requests for shipment tracking.
type TrackingHandler struct {
	trackingService *service.TrackingService
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(trackingService *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// UpdateTrackingRequest is the body for replacing carrier details.
type UpdateTrackingRequest struct {
	TrackingNumber    string    `json:"trackingNumber"`
	Carrier           string    `json:"carrier"`
	TrackingURL       string    `json:"trackingUrl"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
}

// AppendEventRequest is the body for appending one history entry.
type AppendEventRequest struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func rayID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

// GetTracking godoc
// @Summary Get shipment tracking for an order
// @Description Returns the order's tracking state. Customers can only read their own orders.
// @Tags tracking
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.TrackingState
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id}/seguimiento [get]
func (h *TrackingHandler) GetTracking(c *fiber.Ctx) error {
	orderID := c.Params("id")

	snap, err := h.trackingService.GetSnapshot(c.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, ordersdomain.ErrOrderNotFound):
			return c.Status(http.StatusNotFound).JSON(ErrorResponse{
				Message: "order not found",
				RayID:   rayID(c),
			})
		case errors.Is(err, ordersdomain.ErrNotShipped):
			return c.Status(http.StatusConflict).JSON(ErrorResponse{
				Message: "order has not shipped yet",
				RayID:   rayID(c),
			})
		}
		logger.Get().Error("Failed to get tracking snapshot", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Message: "internal server error",
			RayID:   rayID(c),
		})
	}

	claims := auth.ClaimsFromCtx(c)
	if !claims.IsStaff() && snap.CustomerID != claims.UserID {
		return c.Status(http.StatusForbidden).JSON(ErrorResponse{
			Message: "not allowed to view this order",
			RayID:   rayID(c),
		})
	}

	return c.JSON(snap.Seguimiento)
}

// UpdateTracking godoc
// @Summary Replace carrier details for an order's shipment
// @Description Sets tracking number, carrier, URL and delivery estimate. Event history is preserved. Staff only.
// @Tags tracking
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param details body UpdateTrackingRequest true "Carrier details"
// @Success 200 {object} domain.TrackingState
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id}/seguimiento [put]
func (h *TrackingHandler) UpdateTracking(c *fiber.Ctx) error {
	var req UpdateTrackingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	state, err := h.trackingService.UpdateDetails(c.Context(), c.Params("id"), domain.Details{
		TrackingNumber:    req.TrackingNumber,
		Carrier:           req.Carrier,
		TrackingURL:       req.TrackingURL,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(state)
}

// AppendEvent godoc
// @Summary Append one tracking event to an order's shipment history
// @Description Adds a status entry. Existing entries are never reordered or removed. Staff only.
// @Tags tracking
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param event body AppendEventRequest true "Tracking event"
// @Success 200 {object} domain.TrackingState
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id}/seguimiento/evento [post]
func (h *TrackingHandler) AppendEvent(c *fiber.Ctx) error {
	var req AppendEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	state, err := h.trackingService.AppendEvent(c.Context(), c.Params("id"), req.Status, req.Timestamp)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(state)
}

// writeError maps tracking write failures to HTTP statuses.
func (h *TrackingHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ordersdomain.ErrOrderNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Message: "order not found",
			RayID:   rayID(c),
		})
	case errors.Is(err, ordersdomain.ErrNotShipped):
		return c.Status(http.StatusConflict).JSON(ErrorResponse{
			Message: "order has not shipped yet",
			RayID:   rayID(c),
		})
	case errors.Is(err, ordersdomain.ErrOrderConflict):
		return c.Status(http.StatusConflict).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	case errors.Is(err, domain.ErrEmptyStatus),
		errors.Is(err, domain.ErrMissingCarrier),
		errors.Is(err, domain.ErrMissingTrackingNumber):
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	logger.Get().Error("Tracking operation failed", zap.Error(err))
	return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
		Message: "internal server error",
		RayID:   rayID(c),
	})
}
