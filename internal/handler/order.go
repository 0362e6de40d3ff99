package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"datanexus-marketplace/internal/dto"
	"datanexus-marketplace/internal/middleware"
	"datanexus-marketplace/internal/service"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	order, err := h.orderService.CreateOrder(ctx, req.ProductID, callerID, service.Rail(req.Rail))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.ConfirmOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	order, err := h.orderService.ConfirmOrder(ctx, c.Param("id"), callerID, &service.PaymentProof{
		Signature: req.Signature,
		Token:     req.Token,
		EscrowPDA: req.EscrowPDA,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.orderService.GetOrder(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}
