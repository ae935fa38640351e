package premiumstatus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mealbook/billing-reconciler/internal/http/middlewarectx"
	"github.com/mealbook/billing-reconciler/internal/models"
)

// MockService реализует интерфейс premiumstatus.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) PremiumStatus(ctx context.Context, userUID string) (*models.SubscriptionRecord, error) {
	args := m.Called(ctx, userUID)
	if res := args.Get(0); res != nil {
		return res.(*models.SubscriptionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestPremiumStatusHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "активная подписка",
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("PremiumStatus", mock.Anything, "uid-1").Return(&models.SubscriptionRecord{
					UserUID:            "uid-1",
					SubscriptionStatus: models.StatusActive,
					IsPremiumActive:    true,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"is_premium_active":true`,
		},
		{
			name:    "пользователь без подписки",
			userUID: "uid-new",
			setupMock: func(m *MockService) {
				m.On("PremiumStatus", mock.Anything, "uid-new").Return(&models.SubscriptionRecord{
					UserUID:            "uid-new",
					SubscriptionStatus: models.StatusNone,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"subscription_status":"none"`,
		},
		{
			name:           "нет UID в контексте",
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "unauthorized",
		},
		{
			name:    "ошибка сервиса",
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("PremiumStatus", mock.Anything, "uid-1").
					Return(nil, errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/status", nil)
			if tt.userUID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, tt.userUID))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
