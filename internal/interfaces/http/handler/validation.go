package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/storefront/backend/internal/domain/tenant"
)

// tenant_slug shares the slug rules with the domain so the binding layer
// and the directory reject the same inputs.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("tenant_slug", func(fl validator.FieldLevel) bool {
			return tenant.ValidateSlug(fl.Field().String()) == nil
		})
	}
}
