package application

import (
	"github.com/wms-platform/ingredient-stock/internal/domain"
	"github.com/wms-platform/ingredient-stock/pkg/middleware"
)

// Validate checks a command's binding rules. Callers outside HTTP (workflows,
// the reconcile CLI) go through the same rules as request binding.
func Validate(cmd interface{}) error {
	if appErr := middleware.ValidateStruct(cmd); appErr != nil {
		return appErr
	}
	return nil
}

func validateKeyed(key domain.StockKey, cmd interface{}) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return Validate(cmd)
}
