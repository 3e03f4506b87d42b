package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/middleware"
	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.Claims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.Claims)
	if !ok {
		return nil
	}
	return claims
}

// requestScope returns the caller id and the academic year resolved by middleware.
func requestScope(c *gin.Context) (string, models.AcademicYear, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", models.AcademicYear{}, appErrors.ErrUnauthorized
	}
	value, exists := c.Get(middleware.ContextYearKey)
	if !exists {
		return "", models.AcademicYear{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year not resolved")
	}
	year, ok := value.(*models.AcademicYear)
	if !ok || year == nil {
		return "", models.AcademicYear{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year not resolved")
	}
	return claims.UserID, *year, nil
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
