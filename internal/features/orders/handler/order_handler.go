package handler

import (
	"errors"
	"net/http"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/logger"
	"order-tracker/internal/features/orders/domain"
	"order-tracker/internal/features/orders/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders and cancellation requests.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// UpdateStatusRequest is the body for moving an order through its lifecycle.
type UpdateStatusRequest struct {
	Estado string `json:"estado"`
	Notas  string `json:"notas"`
}

// CancellationRequestBody is the body for filing a cancellation request.
type CancellationRequestBody struct {
	Motivo string `json:"motivo"`
}

// ResolveCancellationRequest is the body for deciding a cancellation request.
type ResolveCancellationRequest struct {
	Aprobar bool `json:"aprobar"`
}

func rayID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

// GetOrder godoc
// @Summary Get one order
// @Description Returns the order with its embedded tracking state. Customers can only read their own orders.
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id} [get]
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.orderService.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}

	claims := auth.ClaimsFromCtx(c)
	if !claims.IsStaff() && !order.OwnedBy(claims.UserID) {
		return c.Status(http.StatusForbidden).JSON(ErrorResponse{
			Message: "not allowed to view this order",
			RayID:   rayID(c),
		})
	}

	return c.JSON(order)
}

// UpdateStatus godoc
// @Summary Change an order's lifecycle status
// @Description Validates the transition graph; shipping an order creates its tracking state. Staff only.
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id}/estado [put]
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	order, err := h.orderService.UpdateStatus(c.Context(), c.Params("id"), domain.OrderStatus(req.Estado), req.Notas)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(order)
}

// RequestCancellation godoc
// @Summary File a cancellation request for an order
// @Description Queues the request for administrator review. One pending request per order. Staff only.
// @Tags cancellations
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param request body CancellationRequestBody true "Cancellation reason"
// @Success 201 {object} domain.CancellationRequest
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/pedidos/{id}/solicitudes-cancelacion [post]
func (h *OrderHandler) RequestCancellation(c *fiber.Ctx) error {
	var req CancellationRequestBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	claims := auth.ClaimsFromCtx(c)
	request, err := h.orderService.RequestCancellation(c.Context(), c.Params("id"), claims.UserID, req.Motivo)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(request)
}

// ResolveCancellation godoc
// @Summary Approve or reject a cancellation request
// @Description Approval cancels the order and notifies its room subscribers. Admin only.
// @Tags cancellations
// @Accept json
// @Produce json
// @Param id path string true "Cancellation request ID"
// @Param decision body ResolveCancellationRequest true "Decision"
// @Success 200 {object} domain.CancellationRequest
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/solicitudes-cancelacion/{id} [put]
func (h *OrderHandler) ResolveCancellation(c *fiber.Ctx) error {
	var req ResolveCancellationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	claims := auth.ClaimsFromCtx(c)
	request, err := h.orderService.ResolveCancellation(c.Context(), c.Params("id"), req.Aprobar, claims.UserID)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(request)
}

// writeError maps order operation failures to HTTP statuses.
func (h *OrderHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Message: "order not found",
			RayID:   rayID(c),
		})
	case errors.Is(err, domain.ErrCancellationNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Message: "cancellation request not found",
			RayID:   rayID(c),
		})
	case errors.Is(err, domain.ErrInvalidStatus):
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrCancellationDuplicate),
		errors.Is(err, domain.ErrCancellationResolved),
		errors.Is(err, domain.ErrOrderConflict):
		return c.Status(http.StatusConflict).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	logger.Get().Error("Order operation failed", zap.Error(err))
	return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
		Message: "internal server error",
		RayID:   rayID(c),
	})
}
