package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wms-platform/ingredient-stock/pkg/errors"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UnitCost decimal.Decimal `json:"unitCost" binding:"decimal_gte0"`
	Item     string          `json:"item" binding:"required,stock_id"`
}

func newTestRouter() *gin.Engine {
	router := gin.New()
	Setup(router, DefaultConfig("ingredient-stock", logging.Discard()))
	return router
}

func TestBindAndValidate(t *testing.T) {
	router := newTestRouter()
	router.POST("/q", func(c *gin.Context) {
		var req quantityRequest
		if appErr := BindAndValidate(c, &req); appErr != nil {
			NewErrorResponder(c, logging.Discard()).RespondWithAppError(appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"quantity": req.Quantity.String()})
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"valid", `{"quantity":"2.5","unitCost":"0","item":"flour-01"}`, http.StatusOK, ""},
		{"zero quantity", `{"quantity":"0","unitCost":"1","item":"flour"}`, http.StatusBadRequest, "quantity"},
		{"negative cost", `{"quantity":1,"unitCost":"-1","item":"flour"}`, http.StatusBadRequest, "unitCost"},
		{"bad item", `{"quantity":1,"unitCost":1,"item":"a/b"}`, http.StatusBadRequest, "item"},
		{"malformed", `{"quantity":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/q", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantField != "" {
				var resp APIErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, apperrors.CodeValidationError, resp.Code)
				assert.Contains(t, resp.Details, tt.wantField)
			}
		})
	}
}

func TestRequestAndCorrelationIDs(t *testing.T) {
	router := newTestRouter()
	var seen string
	router.GET("/ids", func(c *gin.Context) {
		seen = logging.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ids", nil)
	req.Header.Set(HeaderCorrelationID, "corr-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "corr-42", seen)
	assert.Equal(t, "corr-42", w.Header().Get(HeaderCorrelationID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	router := newTestRouter()
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInternalError)
}

func TestErrorHandler_UsesAttachedError(t *testing.T) {
	router := newTestRouter()
	router.GET("/err", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrConflict("version moved"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNoRouteAndContentType(t *testing.T) {
	router := newTestRouter()
	router.POST("/json", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")

	req := httptest.NewRequest(http.MethodPost, "/json", strings.NewReader("quantity=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("test"))
	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/api/v1/stock/:orgId", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", MetricsEndpoint(m))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/stock/org-1", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/api/v1/stock/:orgId"`)
}

func TestRegisterProbes(t *testing.T) {
	var storageErr error
	router := newTestRouter()
	RegisterProbes(router, "ingredient-stock", map[string]DependencyCheck{
		"storage": func(context.Context) error { return storageErr },
		"ledger":  func(context.Context) error { return nil },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name       string
		storageErr error
		wantStatus int
		wantState  string
		wantCheck  string
	}{
		{"all dependencies up", nil, http.StatusOK, "ready", "ok"},
		{"storage down", errors.New("no primary"), http.StatusServiceUnavailable, "not ready", "no primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storageErr = tt.storageErr
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, PathReady, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Status)
			assert.Equal(t, tt.wantCheck, body.Checks["storage"])
			assert.Equal(t, "ok", body.Checks["ledger"])
		})
	}
}
