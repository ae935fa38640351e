package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mealbook/billing-reconciler/internal/audit"
	"github.com/mealbook/billing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UpsertMerge(ctx context.Context, userUID string, patch models.RecordPatch) error {
	return m.Called(ctx, userUID, patch).Error(0)
}

func (m *RepoMock) FindUserUIDsByCustomerID(ctx context.Context, customerID string) ([]string, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *RepoMock) UpdateByCustomerID(ctx context.Context, customerID string, patch models.RecordPatch) ([]string, error) {
	args := m.Called(ctx, customerID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type AuditMock struct {
	mock.Mock
	records []audit.Record
}

func (m *AuditMock) Publish(rec audit.Record) error {
	m.records = append(m.records, rec)
	return m.Called(rec).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func makeEvent(t *testing.T, id, eventType string, object any) *models.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)

	ev := &models.Event{ID: id, Type: eventType}
	ev.Data.Object = raw
	return ev
}

func newTestService(repo *RepoMock, c *CacheMock, sink *AuditMock) *Service {
	return New(repo, c, sink, newNoopLogger())
}

func TestProcessEvent_UnhandledTypeAcknowledged(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	sink := new(AuditMock)
	sink.On("Publish", mock.Anything).Return(nil)

	svc := newTestService(repo, cacheMock, sink)

	ev := makeEvent(t, "evt_1", "invoice.payment_succeeded", map[string]string{"id": "in_1"})
	err := svc.ProcessEvent(context.Background(), ev)

	require.NoError(t, err)
	repo.AssertNotCalled(t, "UpsertMerge", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "ignored", sink.records[0].Outcome)
}

func TestProcessEvent_CheckoutCompleted(t *testing.T) {
	tests := []struct {
		name       string
		session    models.CheckoutSession
		setupMocks func(r *RepoMock, c *CacheMock)
		wantErr    error
	}{
		{
			name: "успешный чекаут по client_reference_id",
			session: models.CheckoutSession{
				Customer:          "cus_1",
				Subscription:      "sub_1",
				ClientReferenceID: "uid-1",
			},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("UpsertMerge", mock.Anything, "uid-1", mock.MatchedBy(func(p models.RecordPatch) bool {
					return p.SubscriptionStatus != nil && *p.SubscriptionStatus == models.StatusActive &&
						p.IsPremiumActive != nil && *p.IsPremiumActive &&
						p.ProviderCustomerID != nil && *p.ProviderCustomerID == "cus_1"
				})).Return(nil).Once()
				c.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Once()
			},
		},
		{
			name: "uid восстанавливается из метаданных",
			session: models.CheckoutSession{
				Customer: "cus_2",
				Metadata: map[string]string{"user_uid": "uid-2"},
			},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("UpsertMerge", mock.Anything, "uid-2", mock.Anything).Return(nil).Once()
				c.On("Invalidate", mock.Anything, "premium:uid-2").Return(nil).Once()
			},
		},
		{
			name:       "нет ссылки на пользователя",
			session:    models.CheckoutSession{Customer: "cus_3"},
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    ErrMissingIdentity,
		},
		{
			name: "сбой хранилища уходит наверх",
			session: models.CheckoutSession{
				Customer:          "cus_4",
				ClientReferenceID: "uid-4",
			},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("UpsertMerge", mock.Anything, "uid-4", mock.Anything).
					Return(errors.New("db down")).Once()
			},
			wantErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cacheMock := new(CacheMock)
			sink := new(AuditMock)
			sink.On("Publish", mock.Anything).Return(nil)
			tt.setupMocks(repo, cacheMock)

			svc := newTestService(repo, cacheMock, sink)

			ev := makeEvent(t, "evt_c", models.EventCheckoutCompleted, tt.session)
			err := svc.ProcessEvent(context.Background(), ev)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, ErrMissingIdentity) {
					assert.ErrorIs(t, err, ErrMissingIdentity)
					// Событие без личности не трогает хранилище.
					repo.AssertNotCalled(t, "UpsertMerge", mock.Anything, mock.Anything, mock.Anything)
				}
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
			cacheMock.AssertExpectations(t)
		})
	}
}

func TestProcessEvent_CheckoutReplayIsIdempotent(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	sink := new(AuditMock)
	sink.On("Publish", mock.Anything).Return(nil)

	var patches []models.RecordPatch
	repo.On("UpsertMerge", mock.Anything, "uid-1", mock.Anything).
		Run(func(args mock.Arguments) {
			patches = append(patches, args.Get(2).(models.RecordPatch))
		}).Return(nil).Twice()
	cacheMock.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Twice()

	svc := newTestService(repo, cacheMock, sink)

	ev := makeEvent(t, "evt_r", models.EventCheckoutCompleted, models.CheckoutSession{
		Customer:          "cus_1",
		Subscription:      "sub_1",
		ClientReferenceID: "uid-1",
	})

	require.NoError(t, svc.ProcessEvent(context.Background(), ev))
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))

	// Повторная доставка шлёт в хранилище тот же самый патч.
	require.Len(t, patches, 2)
	assert.Equal(t, *patches[0].SubscriptionStatus, *patches[1].SubscriptionStatus)
	assert.Equal(t, *patches[0].IsPremiumActive, *patches[1].IsPremiumActive)
	assert.Equal(t, *patches[0].ProviderCustomerID, *patches[1].ProviderCustomerID)
	assert.Equal(t, *patches[0].SubscriptionID, *patches[1].SubscriptionID)
}

func TestProcessEvent_SubscriptionUpdated(t *testing.T) {
	tests := []struct {
		name       string
		sub        models.Subscription
		setupMocks func(r *RepoMock, c *CacheMock)
		wantErr    error
	}{
		{
			name: "статус копируется, премиум снимается для past_due",
			sub:  models.Subscription{Customer: "cus_1", Status: models.StatusPastDue},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("FindUserUIDsByCustomerID", mock.Anything, "cus_1").
					Return([]string{"uid-1"}, nil).Once()
				r.On("UpdateByCustomerID", mock.Anything, "cus_1", mock.MatchedBy(func(p models.RecordPatch) bool {
					return *p.SubscriptionStatus == models.StatusPastDue && !*p.IsPremiumActive
				})).Return([]string{"uid-1"}, nil).Once()
				c.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Once()
			},
		},
		{
			name: "неизвестный клиент безобиден",
			sub:  models.Subscription{Customer: "cus_ghost", Status: models.StatusActive},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("FindUserUIDsByCustomerID", mock.Anything, "cus_ghost").
					Return([]string{}, nil).Once()
			},
			wantErr: ErrUnknownCustomer,
		},
		{
			name: "несколько совпадений: обновляются все, наружу сигнал целостности",
			sub:  models.Subscription{Customer: "cus_dup", Status: models.StatusActive},
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("FindUserUIDsByCustomerID", mock.Anything, "cus_dup").
					Return([]string{"uid-1", "uid-2"}, nil).Once()
				r.On("UpdateByCustomerID", mock.Anything, "cus_dup", mock.Anything).
					Return([]string{"uid-1", "uid-2"}, nil).Once()
				c.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Once()
				c.On("Invalidate", mock.Anything, "premium:uid-2").Return(nil).Once()
			},
			wantErr: ErrAmbiguousCustomer,
		},
		{
			name: "сбой хранилища уходит наверх",
			sub:  models.Subscription{Customer: "cus_1", Status: models.StatusActive},
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("FindUserUIDsByCustomerID", mock.Anything, "cus_1").
					Return(nil, errors.New("db down")).Once()
			},
			wantErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cacheMock := new(CacheMock)
			sink := new(AuditMock)
			sink.On("Publish", mock.Anything).Return(nil)
			tt.setupMocks(repo, cacheMock)

			svc := newTestService(repo, cacheMock, sink)

			ev := makeEvent(t, "evt_u", models.EventSubscriptionUpdated, tt.sub)
			err := svc.ProcessEvent(context.Background(), ev)

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.wantErr, ErrUnknownCustomer):
				assert.ErrorIs(t, err, ErrUnknownCustomer)
			case errors.Is(tt.wantErr, ErrAmbiguousCustomer):
				assert.ErrorIs(t, err, ErrAmbiguousCustomer)
			default:
				require.Error(t, err)
			}
			repo.AssertExpectations(t)
			cacheMock.AssertExpectations(t)
		})
	}
}

func TestProcessEvent_SubscriptionDeleted(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	sink := new(AuditMock)
	sink.On("Publish", mock.Anything).Return(nil)

	repo.On("FindUserUIDsByCustomerID", mock.Anything, "cus_1").
		Return([]string{"uid-1"}, nil).Once()
	repo.On("UpdateByCustomerID", mock.Anything, "cus_1", mock.MatchedBy(func(p models.RecordPatch) bool {
		return *p.SubscriptionStatus == models.StatusCanceled && !*p.IsPremiumActive
	})).Return([]string{"uid-1"}, nil).Once()
	cacheMock.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Once()

	svc := newTestService(repo, cacheMock, sink)

	ev := makeEvent(t, "evt_d", models.EventSubscriptionDeleted, models.Subscription{
		Customer: "cus_1",
		Status:   models.StatusCanceled,
	})

	require.NoError(t, svc.ProcessEvent(context.Background(), ev))
	repo.AssertExpectations(t)

	require.NotEmpty(t, sink.records)
	last := sink.records[len(sink.records)-1]
	assert.Equal(t, "applied", last.Outcome)
	assert.Equal(t, "uid-1", last.UserUID)
	assert.Equal(t, "cus_1", last.CustomerID)
}

func TestProcessEvent_AuditFailureDoesNotFailProcessing(t *testing.T) {
	repo := new(RepoMock)
	cacheMock := new(CacheMock)
	sink := new(AuditMock)
	sink.On("Publish", mock.Anything).Return(errors.New("amqp down"))

	repo.On("UpsertMerge", mock.Anything, "uid-1", mock.Anything).Return(nil).Once()
	cacheMock.On("Invalidate", mock.Anything, "premium:uid-1").Return(nil).Once()

	svc := newTestService(repo, cacheMock, sink)

	ev := makeEvent(t, "evt_a", models.EventCheckoutCompleted, models.CheckoutSession{
		ClientReferenceID: "uid-1",
	})
	assert.NoError(t, svc.ProcessEvent(context.Background(), ev))
}
