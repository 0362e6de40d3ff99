package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"datanexus-marketplace/internal/dto"
	"datanexus-marketplace/internal/middleware"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/service"
)

type DisputeHandler struct {
	disputeService service.DisputeService
	syncService    service.ChainSyncService
}

func NewDisputeHandler(disputeService service.DisputeService, syncService service.ChainSyncService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
		syncService:    syncService,
	}
}

func (h *DisputeHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.CreateDisputeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	dispute, err := h.disputeService.CreateDispute(ctx, req.OrderID, callerID,
		model.DisputeReason(req.Reason), req.Description, req.Evidence, req.RequestedAmount)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dispute)
}

func (h *DisputeHandler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.ResolveDisputeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	dispute, refund, err := h.disputeService.ResolveDispute(ctx, c.Param("id"), callerID, req.Accepted)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"dispute": dispute,
		"refund":  refund,
	})
}

func (h *DisputeHandler) ConfirmRefund(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ConfirmRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	refund, err := h.disputeService.ConfirmRefund(ctx, c.Param("id"), &service.PaymentProof{Signature: req.Signature})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, refund)
}

func (h *DisputeHandler) SyncStatus(c echo.Context) error {
	ctx := c.Request().Context()

	status, err := h.syncService.CheckSyncStatus(ctx, c.Param("recordId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, status)
}
