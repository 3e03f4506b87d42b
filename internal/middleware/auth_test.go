package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims *models.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func claimsFor(userID string, role models.UserRole, ttl time.Duration) *models.Claims {
	return &models.Claims{
		UserID:           userID,
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
	}
}

func TestParseToken(t *testing.T) {
	claims, err := ParseToken([]byte(testSecret), signToken(t, jwt.SigningMethodHS256, claimsFor("teacher-1", models.RoleTeacher, time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)

	_, err = ParseToken([]byte(testSecret), signToken(t, jwt.SigningMethodHS256, claimsFor("teacher-1", models.RoleTeacher, -time.Hour)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Contains(t, err.Error(), "expired")

	_, err = ParseToken([]byte(testSecret), signToken(t, jwt.SigningMethodHS512, claimsFor("teacher-1", models.RoleTeacher, time.Hour)))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = ParseToken([]byte("other"), signToken(t, jwt.SigningMethodHS256, claimsFor("teacher-1", models.RoleTeacher, time.Hour)))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = ParseToken([]byte(testSecret), signToken(t, jwt.SigningMethodHS256, claimsFor("", models.RoleTeacher, time.Hour)))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestJWTAndRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", JWT(testSecret), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"bad scheme":     {"Basic abc", http.StatusUnauthorized},
		"teacher":        {"Bearer " + signToken(t, jwt.SigningMethodHS256, claimsFor("teacher-1", models.RoleTeacher, time.Hour)), http.StatusForbidden},
		"admin":          {"Bearer " + signToken(t, jwt.SigningMethodHS256, claimsFor("admin-1", models.RoleAdmin, time.Hour)), http.StatusNoContent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

type stubYears struct {
	active *models.AcademicYear
	byID   map[string]*models.AcademicYear
}

func (s *stubYears) FindYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := s.byID[id]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubYears) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	if s.active == nil {
		return nil, errors.New("db down")
	}
	return s.active, nil
}

func TestAcademicYearMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	years := &stubYears{
		active: &models.AcademicYear{ID: "year-2", IsActive: true},
		byID:   map[string]*models.AcademicYear{"year-1": {ID: "year-1"}},
	}
	router := gin.New()
	router.GET("/", AcademicYear(years), func(c *gin.Context) {
		year := c.MustGet(ContextYearKey).(*models.AcademicYear)
		c.String(http.StatusOK, year.ID)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "year-2", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AcademicYearHeader, "year-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "year-1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AcademicYearHeader, "year-9")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	years.active = nil
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
