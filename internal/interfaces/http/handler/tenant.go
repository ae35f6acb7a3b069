package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apptenant "github.com/storefront/backend/internal/application/tenant"
	"github.com/storefront/backend/internal/domain/tenant"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// TenantHandler exposes the administrative tenant lifecycle
type TenantHandler struct {
	directory *apptenant.Directory
	logger    *zap.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(directory *apptenant.Directory, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{directory: directory, logger: logger}
}

// TenantResponse is the wire representation of a tenant
type TenantResponse struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Domain       string          `json:"domain"`
	CustomDomain string          `json:"custom_domain,omitempty"`
	Status       string          `json:"status"`
	Region       string          `json:"region"`
	PlanID       string          `json:"plan_id"`
	Settings     tenant.Settings `json:"settings"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toTenantResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID.String(),
		Slug:         t.Slug,
		Name:         t.Name,
		Domain:       t.Domain,
		CustomDomain: t.CustomDomain,
		Status:       string(t.Status),
		Region:       t.Region,
		PlanID:       t.Subscription.PlanID,
		Settings:     t.Settings,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func respondError(c *gin.Context, err error) {
	resp, status := dto.FromError(err)
	c.JSON(status, resp)
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, "invalid tenant id"))
		return uuid.Nil, false
	}
	return id, true
}

// CreateTenantRequest is the payload for opening a storefront
type CreateTenantRequest struct {
	Slug   string `json:"slug" binding:"required,tenant_slug"`
	Name   string `json:"name" binding:"required,min=1,max=255"`
	Region string `json:"region" binding:"required"`
}

// Create handles POST /admin/tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	t, err := h.directory.Create(c.Request.Context(), apptenant.CreateInput{
		Slug:   req.Slug,
		Name:   req.Name,
		Region: req.Region,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(toTenantResponse(t)))
}

// Get handles GET /admin/tenants/:id
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	t, err := h.directory.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// ListTenantsRequest are the query parameters for the tenant listing
type ListTenantsRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=active suspended deleted"`
	Region   string `form:"region"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize int    `form:"page_size,default=20" binding:"min=1,max=100"`
}

// List handles GET /admin/tenants
func (h *TenantHandler) List(c *gin.Context) {
	var req ListTenantsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	tenants, err := h.directory.List(c.Request.Context(), tenant.Filter{
		Status:   tenant.Status(req.Status),
		Region:   req.Region,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TenantResponse, 0, len(tenants))
	for i := range tenants {
		out = append(out, toTenantResponse(&tenants[i]))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(out, req.Page, req.PageSize, len(out)))
}

// RenameTenantRequest is the payload for renaming a tenant
type RenameTenantRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// Rename handles PATCH /admin/tenants/:id
func (h *TenantHandler) Rename(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req RenameTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	t, err := h.directory.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// CustomDomainRequest is the payload for attaching a custom domain
type CustomDomainRequest struct {
	Domain string `json:"domain" binding:"required,fqdn"`
}

// SetCustomDomain handles PUT /admin/tenants/:id/custom-domain
func (h *TenantHandler) SetCustomDomain(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req CustomDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	t, err := h.directory.SetCustomDomain(c.Request.Context(), id, req.Domain)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// UpdateSettingsRequest wraps the versioned settings blob
type UpdateSettingsRequest struct {
	Settings tenant.Settings `json:"settings" binding:"required"`
}

// UpdateSettings handles PUT /admin/tenants/:id/settings
func (h *TenantHandler) UpdateSettings(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}

	t, err := h.directory.UpdateSettings(c.Request.Context(), id, req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// ChangePlanRequest is the payload for a subscription change
type ChangePlanRequest struct {
	PlanID       string    `json:"plan_id" binding:"required"`
	Price        string    `json:"price" binding:"required"`
	MaxProducts  int       `json:"max_products" binding:"min=0"`
	MaxOrders    int       `json:"max_orders" binding:"min=0"`
	MaxCustomers int       `json:"max_customers" binding:"min=0"`
	PeriodStart  time.Time `json:"period_start" binding:"required"`
	PeriodEnd    time.Time `json:"period_end" binding:"required"`
}

// ChangePlan handles PUT /admin/tenants/:id/plan
func (h *TenantHandler) ChangePlan(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error()))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, "invalid price"))
		return
	}

	t, err := h.directory.ChangePlan(c.Request.Context(), id, tenant.Subscription{
		PlanID: req.PlanID,
		Price:  price,
		Limits: tenant.Limits{
			MaxProducts:  req.MaxProducts,
			MaxOrders:    req.MaxOrders,
			MaxCustomers: req.MaxCustomers,
		},
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// Suspend handles POST /admin/tenants/:id/suspend
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.statusChange(c, h.directory.Suspend)
}

// Reactivate handles POST /admin/tenants/:id/reactivate
func (h *TenantHandler) Reactivate(c *gin.Context) {
	h.statusChange(c, h.directory.Reactivate)
}

// SoftDelete handles DELETE /admin/tenants/:id
func (h *TenantHandler) SoftDelete(c *gin.Context) {
	h.statusChange(c, h.directory.SoftDelete)
}

func (h *TenantHandler) statusChange(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	t, err := op(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTenantResponse(t)))
}

// Purge handles DELETE /admin/tenants/:id/purge. It drops the tenant's
// schema and rows for good.
func (h *TenantHandler) Purge(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.directory.AdminDelete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"deleted": id.String()}))
}

// InvalidateDirectory handles POST /admin/cache/directory/invalidate
func (h *TenantHandler) InvalidateDirectory(c *gin.Context) {
	if err := h.directory.InvalidateDirectory(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"invalidated": true}))
}
