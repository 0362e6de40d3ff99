package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"

	"datanexus-marketplace/internal/dto"
	"datanexus-marketplace/internal/middleware"
	"datanexus-marketplace/internal/service"
)

type ProductHandler struct {
	productService service.ProductService
	accessService  service.AccessService
}

func NewProductHandler(productService service.ProductService, accessService service.AccessService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		accessService:  accessService,
	}
}

func (h *ProductHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	var req dto.UploadProductRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	plaintext, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "content must be base64")
	}

	product, err := h.productService.Upload(ctx, callerID, req.Name, req.Description, req.Filename, req.Price, plaintext)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	product, err := h.productService.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	plaintext, filename, err := h.productService.Download(ctx, c.Param("id"), callerID)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/octet-stream", plaintext)
}

func (h *ProductHandler) Capabilities(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := middleware.CallerID(c)

	caps, err := h.accessService.Capabilities(ctx, c.Param("id"), callerID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(caps))
	for capability := range caps {
		names = append(names, string(capability))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"capabilities": names})
}
