package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

func setupEventsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PROCESSING',
  payload TEXT,
  last_error TEXT,
  processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_events_event_id ON webhook_events (event_id);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func TestClaimFreshEvent(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	payload := json.RawMessage(`{"eventId":"evt_1"}`)
	result, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, payload)
	require.NoError(t, err)
	require.Equal(t, OutcomeClaimed, result.Outcome)
	require.NotNil(t, result.Event)
	require.Equal(t, enums.WebhookProcessing, result.Event.Status)
}

func TestClaimDuplicateInFlight(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)

	result, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicateInFlight, result.Outcome)
}

func TestClaimDuplicateCompleted(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Finalize(ctx, "evt_1", enums.WebhookCompleted, ""))

	result, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicateCompleted, result.Outcome)
}

func TestClaimReArmsFailedEvent(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Finalize(ctx, "evt_1", enums.WebhookFailed, "upload timed out"))

	fresh := json.RawMessage(`{"eventId":"evt_1","retried":true}`)
	result, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, fresh)
	require.NoError(t, err)
	require.Equal(t, OutcomeClaimed, result.Outcome)
	require.Equal(t, enums.WebhookProcessing, result.Event.Status)
	require.Nil(t, result.Event.LastError)
	// the retry must see the freshly stored payload, not the original
	require.JSONEq(t, string(fresh), string(result.Event.Payload))
}

func TestFinalizeNeverDemotesCompleted(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Claim(ctx, "evt_1", enums.EventOrderPaid, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Finalize(ctx, "evt_1", enums.WebhookCompleted, ""))
	require.NoError(t, repo.Finalize(ctx, "evt_1", enums.WebhookFailed, "late failure"))

	event, err := repo.FindByEventID(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, enums.WebhookCompleted, event.Status)
	require.NotNil(t, event.ProcessedAt)
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)

	err := repo.Finalize(context.Background(), "evt_1", enums.WebhookProcessing, "")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestFindByEventIDNotFound(t *testing.T) {
	conn := setupEventsTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.FindByEventID(context.Background(), "evt_missing")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestClaimConcurrentDeliveriesYieldOneClaim(t *testing.T) {
	conn := setupEventsTestDB(t)

	// sqlite cannot take concurrent writers; one pooled connection keeps
	// the statements interleaved rather than erroring
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(conn)
	ctx := context.Background()

	const deliveries = 8
	outcomes := make([]ClaimOutcome, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := repo.Claim(ctx, "evt_burst", enums.EventOrderPaid, nil)
			errs[i] = err
			if err == nil {
				outcomes[i] = result.Outcome
			}
		}(i)
	}
	wg.Wait()

	var claimed, duplicate int
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeClaimed:
			claimed++
		case OutcomeDuplicateInFlight:
			duplicate++
		default:
			t.Fatalf("unexpected outcome %v", outcomes[i])
		}
	}
	require.Equal(t, 1, claimed)
	require.Equal(t, deliveries-1, duplicate)
}
