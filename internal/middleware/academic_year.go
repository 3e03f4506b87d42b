package middleware

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
	"github.com/noah-isme/sma-records-api/pkg/response"
)

// ContextYearKey is the gin context key storing the resolved academic year.
const ContextYearKey = "academicYear"

// AcademicYearHeader selects a year other than the active one.
const AcademicYearHeader = "X-Academic-Year"

type yearFinder interface {
	FindYear(ctx context.Context, id string) (*models.AcademicYear, error)
	ActiveYear(ctx context.Context) (*models.AcademicYear, error)
}

// AcademicYear loads the year named by the X-Academic-Year header, or the active year, once per request.
func AcademicYear(years yearFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			year *models.AcademicYear
			err  error
		)
		if id := c.GetHeader(AcademicYearHeader); id != "" {
			year, err = years.FindYear(ctx, id)
		} else {
			year, err = years.ActiveYear(ctx)
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year not found"))
			} else {
				response.Error(c, appErrors.Internal(err, "failed to load academic year"))
			}
			c.Abort()
			return
		}
		c.Set(ContextYearKey, year)
		c.Next()
	}
}
