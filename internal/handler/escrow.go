package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"datanexus-marketplace/internal/dto"
	"datanexus-marketplace/internal/middleware"
	"datanexus-marketplace/internal/service"
)

type EscrowHandler struct {
	escrowService  service.EscrowService
	requestService service.RequestService
}

func NewEscrowHandler(escrowService service.EscrowService, requestService service.RequestService) *EscrowHandler {
	return &EscrowHandler{
		escrowService:  escrowService,
		requestService: requestService,
	}
}

func (h *EscrowHandler) CreateRequest(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.CreateRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	request, err := h.requestService.CreateRequest(ctx, callerID, req.Title, req.Budget, req.Deadline)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, request)
}

func (h *EscrowHandler) SubmitProposal(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.SubmitProposalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	proposal, err := h.requestService.SubmitProposal(ctx, c.Param("id"), callerID, req.Price)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, proposal)
}

func (h *EscrowHandler) ListProposals(c echo.Context) error {
	ctx := c.Request().Context()

	proposals, err := h.requestService.ListProposals(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, proposals)
}

func (h *EscrowHandler) AcceptProposal(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.AcceptProposalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	escrow, err := h.escrowService.AcceptProposal(ctx, req.RequestID, req.ProposalID, &service.PaymentProof{
		Signature: req.Signature,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, escrow)
}

func (h *EscrowHandler) MarkDelivered(c echo.Context) error {
	return h.applyTransition(c, func(ctx echo.Context, req *dto.EscrowTransitionRequest) (interface{}, error) {
		return h.escrowService.MarkDelivered(ctx.Request().Context(), ctx.Param("pda"), middleware.CallerID(ctx), req.ProductID, &service.PaymentProof{Signature: req.Signature})
	})
}

func (h *EscrowHandler) RaiseDispute(c echo.Context) error {
	return h.applyTransition(c, func(ctx echo.Context, req *dto.EscrowTransitionRequest) (interface{}, error) {
		return h.escrowService.RaiseDispute(ctx.Request().Context(), ctx.Param("pda"), middleware.CallerID(ctx), &service.PaymentProof{Signature: req.Signature})
	})
}

func (h *EscrowHandler) Resolve(c echo.Context) error {
	return h.applyTransition(c, func(ctx echo.Context, req *dto.EscrowTransitionRequest) (interface{}, error) {
		return h.escrowService.ResolveDispute(ctx.Request().Context(), ctx.Param("pda"), middleware.CallerID(ctx), service.ResolveOutcome(req.Outcome), &service.PaymentProof{Signature: req.Signature})
	})
}

func (h *EscrowHandler) Cancel(c echo.Context) error {
	return h.applyTransition(c, func(ctx echo.Context, req *dto.EscrowTransitionRequest) (interface{}, error) {
		return h.escrowService.CancelEscrow(ctx.Request().Context(), ctx.Param("pda"), middleware.CallerID(ctx), &service.PaymentProof{Signature: req.Signature})
	})
}

func (h *EscrowHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	escrow, err := h.escrowService.GetEscrow(ctx, c.Param("pda"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, escrow)
}

func (h *EscrowHandler) applyTransition(c echo.Context, apply func(echo.Context, *dto.EscrowTransitionRequest) (interface{}, error)) error {
	var req dto.EscrowTransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	result, err := apply(c, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
