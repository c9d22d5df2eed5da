package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

func TestErrorHandler(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   any
	}{
		{
			name:       "match error not found",
			err:        ferrors.NotFound("listing 10 is not pending").WithListing(10),
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
		},
		{
			name:       "match error invalid selection",
			err:        ferrors.InvalidSelection("product 999 is not a candidate"),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "invalid_selection",
		},
		{
			name:       "http error",
			err:        httperror.NewHTTPError(http.StatusBadRequest, "bad listing id"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "echo error",
			err:        echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"),
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = Error(logger)
			e.Use(Context())
			e.GET("/fail", func(c echo.Context) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "req-1", body.RequestID)
			assert.NotEmpty(t, body.Message)
			if tt.wantKind != nil {
				assert.Equal(t, tt.wantKind, body.Meta["kind"])
			}
		})
	}
}
