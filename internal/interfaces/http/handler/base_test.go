package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveError(t *testing.T, err error) (int, dto.Response) {
	t.Helper()
	h := &BaseHandler{}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Notifications())
	router.GET("/test", func(c *gin.Context) {
		notify.NewRequestNotifier().NotifyError(c.Request.Context(), "failed", "")
		h.HandleError(c, err)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "domain error",
			err:        shared.ErrEmptySelection,
			wantStatus: http.StatusBadRequest,
			wantCode:   "EMPTY_SELECTION",
		},
		{
			name:       "wrapped domain error",
			err:        fmt.Errorf("approve: %w", shared.ErrItemNotPending),
			wantStatus: http.StatusConflict,
			wantCode:   "ITEM_NOT_PENDING",
		},
		{
			name:       "backend error keeps its status",
			err:        fmt.Errorf("update: %w", &apiclient.APIError{Status: http.StatusUnprocessableEntity, Code: "NAME_TAKEN", Message: "taken"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "NAME_TAKEN",
		},
		{
			name:       "transport error",
			err:        &apiclient.APIError{Code: apiclient.CodeNetwork, Message: "connection refused"},
			wantStatus: http.StatusBadGateway,
			wantCode:   apiclient.CodeNetwork,
		},
		{
			name:       "canceled",
			err:        context.Canceled,
			wantStatus: 499,
			wantCode:   dto.ErrCodeCanceled,
		},
		{
			name:       "deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   dto.ErrCodeUpstream,
		},
		{
			name:       "unknown",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := serveError(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			require.Len(t, resp.Notifications, 1)
			assert.Equal(t, "failed", resp.Notifications[0].Message)
		})
	}
}

func TestPathID(t *testing.T) {
	router := gin.New()
	router.GET("/items/:id", func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.String(http.StatusOK, fmt.Sprint(id))
	})

	for path, want := range map[string]int{"/items/12": http.StatusOK, "/items/0": http.StatusBadRequest, "/items/x": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
