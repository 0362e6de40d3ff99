package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/dto"
	"datanexus-marketplace/internal/handler"
	"datanexus-marketplace/internal/middleware"
	"datanexus-marketplace/internal/service"
)

type Server struct {
	echo           *echo.Echo
	jwtSecret      string
	productHandler *handler.ProductHandler
	orderHandler   *handler.OrderHandler
	escrowHandler  *handler.EscrowHandler
	disputeHandler *handler.DisputeHandler
}

func NewServer(
	jwtSecret string,
	productService service.ProductService,
	accessService service.AccessService,
	orderService service.OrderService,
	escrowService service.EscrowService,
	requestService service.RequestService,
	disputeService service.DisputeService,
	syncService service.ChainSyncService,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo:           e,
		jwtSecret:      jwtSecret,
		productHandler: handler.NewProductHandler(productService, accessService),
		orderHandler:   handler.NewOrderHandler(orderService),
		escrowHandler:  handler.NewEscrowHandler(escrowService, requestService),
		disputeHandler: handler.NewDisputeHandler(disputeService, syncService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	authed := api.Group("", middleware.AuthMiddleware(s.jwtSecret))

	// -------- products --------
	authed.POST("/products", s.productHandler.Upload)
	authed.GET("/products/:id", s.productHandler.Get)
	authed.GET("/products/:id/download", s.productHandler.Download)
	authed.GET("/products/:id/capabilities", s.productHandler.Capabilities)

	// -------- orders --------
	authed.POST("/orders", s.orderHandler.Create)
	authed.POST("/orders/:id/confirm", s.orderHandler.Confirm)
	authed.GET("/orders/:id", s.orderHandler.Get)

	// -------- requests / proposals / escrow --------
	authed.POST("/requests", s.escrowHandler.CreateRequest)
	authed.POST("/requests/:id/proposals", s.escrowHandler.SubmitProposal)
	authed.GET("/requests/:id/proposals", s.escrowHandler.ListProposals)
	authed.POST("/escrows/accept", s.escrowHandler.AcceptProposal)
	authed.GET("/escrows/:pda", s.escrowHandler.Get)
	authed.POST("/escrows/:pda/deliver", s.escrowHandler.MarkDelivered)
	authed.POST("/escrows/:pda/dispute", s.escrowHandler.RaiseDispute)
	authed.POST("/escrows/:pda/resolve", s.escrowHandler.Resolve)
	authed.POST("/escrows/:pda/cancel", s.escrowHandler.Cancel)

	// -------- disputes / refunds / sync --------
	authed.POST("/disputes", s.disputeHandler.Create)
	authed.POST("/disputes/:id/resolve", s.disputeHandler.Resolve)
	authed.POST("/refunds/:id/confirm", s.disputeHandler.ConfirmRefund)
	authed.GET("/sync/:recordId", s.disputeHandler.SyncStatus)
}

// errorHandler maps taxonomy errors to status codes and a stable error
// body; everything else falls through to echo's default handling.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		_ = c.JSON(apperr.HTTPStatus(appErr), dto.ErrorResponse{
			Code:    string(appErr.Code),
			Message: appErr.Message,
		})
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, dto.ErrorResponse{Code: "HTTP_ERROR", Message: httpErr.Error()})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: "internal error"})
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
