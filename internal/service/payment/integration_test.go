package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/provider"
	"github.com/osezele-agbi/paygate/internal/repository"
	"github.com/osezele-agbi/paygate/internal/testutil"
)

func newIntegrationService(t *testing.T, prov provider.Provider) (*Service, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	svc := NewService(
		repository.NewPaymentRepository(db),
		repository.NewRefundRepository(db),
		repository.NewPaymentEventRepository(db),
		repository.NewWebhookLogRepository(db),
		&fakeRegistry{p: prov},
		db,
	)
	return svc, db
}

func countEvents(t *testing.T, db *sql.DB, paymentID uuid.UUID, eventType domain.PaymentEventType) int {
	t.Helper()
	var n int
	err := db.QueryRow(
		`SELECT count(*) FROM payment_events WHERE payment_id = $1 AND event_type = $2`,
		paymentID, eventType,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func webhookLogState(t *testing.T, db *sql.DB, id uuid.UUID) (processed bool, errorMessage *string) {
	t.Helper()
	entry, err := repository.NewWebhookLogRepository(db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return entry.Processed, entry.ErrorMessage
}

func TestIntegrationCreatePayment(t *testing.T) {
	prov := &fakeProvider{
		createIntent: &provider.PaymentIntent{
			ProviderPaymentID: "pi_int_1",
			Amount:            decimal.RequireFromString("100.00"),
			Currency:          domain.CurrencyUSD,
			Status:            domain.PaymentStatusProcessing,
			RawStatus:         "requires_capture",
		},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	p, err := svc.Create(context.Background(), CreateRequest{
		UserID:      userID,
		Amount:      decimal.RequireFromString("100.00"),
		Currency:    domain.CurrencyUSD,
		Description: "order #42",
		Metadata:    map[string]string{"order_id": "42"},
	})
	require.NoError(t, err)

	stored, err := svc.GetPaymentForUser(context.Background(), p.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, stored.Status)
	require.NotNil(t, stored.ProviderPaymentID)
	assert.Equal(t, "pi_int_1", *stored.ProviderPaymentID)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, stored.RefundedAmount.IsZero())

	assert.Equal(t, 1, countEvents(t, db, p.ID, domain.PaymentEventTypeCreated))
}

func TestIntegrationCapture(t *testing.T) {
	prov := &fakeProvider{
		captureIntent: &provider.PaymentIntent{
			ProviderPaymentID: "pi_int_2",
			Status:            domain.PaymentStatusSucceeded,
			RawStatus:         "succeeded",
		},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_2",
		decimal.RequireFromString("50.00"), domain.PaymentStatusProcessing)

	p, err := svc.Capture(context.Background(), seeded.ID, userID, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)
	require.NotNil(t, p.CompletedAt)

	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, seeded.ID))
	assert.Equal(t, 1, countEvents(t, db, seeded.ID, domain.PaymentEventTypeCaptured))
	assert.Equal(t, 1, prov.captureCalls)
}

func TestIntegrationRefundLifecycle(t *testing.T) {
	prov := &fakeProvider{
		refundResult: &provider.RefundResult{
			ProviderRefundID: "re_int_1",
			Status:           domain.RefundStatusSucceeded,
			RawStatus:        "succeeded",
		},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_3",
		decimal.RequireFromString("100.00"), domain.PaymentStatusSucceeded)

	ctx := context.Background()

	// First partial refund.
	refund, err := svc.Refund(ctx, RefundRequest{
		PaymentID: seeded.ID,
		UserID:    userID,
		Amount:    decimal.RequireFromString("40.00"),
		Reason:    "requested_by_customer",
	})
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("40.00")))

	assert.Equal(t, domain.PaymentStatusPartiallyRefunded, testutil.GetPaymentStatus(t, db, seeded.ID))
	assert.True(t, testutil.GetRefundedAmount(t, db, seeded.ID).Equal(decimal.RequireFromString("40.00")))

	// Second refund for the remainder moves the payment to refunded.
	_, err = svc.Refund(ctx, RefundRequest{
		PaymentID: seeded.ID,
		UserID:    userID,
		Amount:    decimal.RequireFromString("60.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRefunded, testutil.GetPaymentStatus(t, db, seeded.ID))
	assert.True(t, testutil.GetRefundedAmount(t, db, seeded.ID).Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, 2, testutil.CountRefunds(t, db, seeded.ID))
	assert.Equal(t, 2, countEvents(t, db, seeded.ID, domain.PaymentEventTypeRefunded))

	// A fully refunded payment takes no further refunds.
	_, err = svc.Refund(ctx, RefundRequest{PaymentID: seeded.ID, UserID: userID})
	require.ErrorIs(t, err, domain.ErrRefundNotEligible)
	assert.Equal(t, 2, testutil.CountRefunds(t, db, seeded.ID))

	refunds, err := svc.ListRefundsForPayment(ctx, seeded.ID, userID)
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	assert.True(t, refunds[0].Amount.Equal(decimal.RequireFromString("40.00")))
	assert.True(t, refunds[1].Amount.Equal(decimal.RequireFromString("60.00")))

	// The audit trail carries one event per refund; foreign users see nothing.
	events, err := svc.ListEventsForPayment(ctx, seeded.ID, userID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	_, err = svc.ListRefundsForPayment(ctx, seeded.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegrationRefund_ZeroAmountRefundsRemainder(t *testing.T) {
	prov := &fakeProvider{
		refundResult: &provider.RefundResult{Status: domain.RefundStatusSucceeded},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_4",
		decimal.RequireFromString("75.50"), domain.PaymentStatusSucceeded)

	refund, err := svc.Refund(context.Background(), RefundRequest{
		PaymentID: seeded.ID,
		UserID:    userID,
	})
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("75.50")))
	assert.Equal(t, domain.PaymentStatusRefunded, testutil.GetPaymentStatus(t, db, seeded.ID))
}

func TestIntegrationRefund_ExceedsRemaining(t *testing.T) {
	prov := &fakeProvider{
		refundResult: &provider.RefundResult{Status: domain.RefundStatusSucceeded},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_5",
		decimal.RequireFromString("100.00"), domain.PaymentStatusSucceeded)

	_, err := svc.Refund(context.Background(), RefundRequest{
		PaymentID: seeded.ID,
		UserID:    userID,
		Amount:    decimal.RequireFromString("150.00"),
	})
	require.ErrorIs(t, err, domain.ErrRefundExceedsAmount)

	assert.Equal(t, 0, testutil.CountRefunds(t, db, seeded.ID))
	assert.Equal(t, 0, prov.refundCalls)
	assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, seeded.ID))
}

func TestIntegrationRefund_IneligibleStatus(t *testing.T) {
	prov := &fakeProvider{
		refundResult: &provider.RefundResult{Status: domain.RefundStatusSucceeded},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_6",
		decimal.RequireFromString("20.00"), domain.PaymentStatusPending)

	_, err := svc.Refund(context.Background(), RefundRequest{
		PaymentID: seeded.ID,
		UserID:    userID,
		Amount:    decimal.RequireFromString("10.00"),
	})
	require.ErrorIs(t, err, domain.ErrRefundNotEligible)

	assert.Equal(t, 0, testutil.CountRefunds(t, db, seeded.ID))
	assert.Equal(t, 0, prov.refundCalls)
}

func TestIntegrationRefund_ConcurrentRefundsSerialize(t *testing.T) {
	prov := &fakeProvider{
		refundResult: &provider.RefundResult{Status: domain.RefundStatusSucceeded},
	}
	svc, db := newIntegrationService(t, prov)

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_int_7",
		decimal.RequireFromString("100.00"), domain.PaymentStatusSucceeded)

	const workers = 5
	refundAmount := decimal.RequireFromString("30.00")

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refund(context.Background(), RefundRequest{
				PaymentID: seeded.ID,
				UserID:    userID,
				Amount:    refundAmount,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrRefundExceedsAmount)
		}
	}

	// Only three 30.00 refunds fit into 100.00.
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, testutil.CountRefunds(t, db, seeded.ID))
	assert.True(t, testutil.GetRefundedAmount(t, db, seeded.ID).Equal(decimal.RequireFromString("90.00")))

	total := testutil.GetRefundedAmount(t, db, seeded.ID)
	assert.True(t, total.LessThanOrEqual(seeded.Amount))
}

func stripeWebhookHeaders(payload, secret string) http.Header {
	timestamp := "1700000000"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + payload))
	headers := http.Header{}
	headers.Set("Stripe-Signature",
		fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestIntegrationWebhook(t *testing.T) {
	const webhookSecret = "whsec_integration"
	stripe, err := provider.NewStripe(provider.StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: webhookSecret,
	})
	require.NoError(t, err)

	svc, db := newIntegrationService(t, stripe)
	ctx := context.Background()

	userID := uuid.New()
	seeded := testutil.SeedPayment(t, db, userID, "pi_wh_1",
		decimal.RequireFromString("100.00"), domain.PaymentStatusProcessing)

	t.Run("invalid signature is rejected and recorded", func(t *testing.T) {
		payload := `{"id":"evt_bad","type":"payment_intent.succeeded"}`
		headers := http.Header{}
		headers.Set("Stripe-Signature", "t=1700000000,v1=deadbeef")

		_, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), headers)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)

		assert.Equal(t, 1, testutil.CountWebhookLogs(t, db, false))
		assert.Equal(t, domain.PaymentStatusProcessing, testutil.GetPaymentStatus(t, db, seeded.ID))
	})

	t.Run("valid delivery applies the status", func(t *testing.T) {
		payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_wh_1","status":"succeeded"}}}`

		result, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), stripeWebhookHeaders(payload, webhookSecret))
		require.NoError(t, err)
		require.False(t, result.Duplicate)

		processed, errMsg := webhookLogState(t, db, result.LogID)
		assert.True(t, processed)
		assert.Nil(t, errMsg)

		assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, seeded.ID))
		assert.Equal(t, 1, countEvents(t, db, seeded.ID, domain.PaymentEventTypeWebhookApplied))

		// The log row links back to the payment it touched.
		logs, err := repository.NewWebhookLogRepository(db).ListByPaymentID(ctx, seeded.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, result.LogID, logs[0].ID)
	})

	t.Run("replayed delivery is deduplicated", func(t *testing.T) {
		payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_wh_1","status":"succeeded"}}}`

		result, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), stripeWebhookHeaders(payload, webhookSecret))
		require.NoError(t, err)
		assert.True(t, result.Duplicate)

		assert.Equal(t, 1, countEvents(t, db, seeded.ID, domain.PaymentEventTypeWebhookApplied))
	})

	t.Run("unknown payment is acknowledged with the failure on the log", func(t *testing.T) {
		payload := `{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_missing","status":"succeeded"}}}`

		result, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), stripeWebhookHeaders(payload, webhookSecret))
		require.NoError(t, err)
		require.False(t, result.Duplicate)

		processed, errMsg := webhookLogState(t, db, result.LogID)
		assert.False(t, processed)
		require.NotNil(t, errMsg)
		assert.Contains(t, *errMsg, "pi_missing")
	})

	t.Run("stale transition is skipped but acknowledged", func(t *testing.T) {
		// The payment already succeeded; a late processing event must not
		// regress it.
		payload := `{"id":"evt_3","type":"payment_intent.processing","data":{"object":{"id":"pi_wh_1","status":"processing"}}}`

		result, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), stripeWebhookHeaders(payload, webhookSecret))
		require.NoError(t, err)

		processed, errMsg := webhookLogState(t, db, result.LogID)
		assert.True(t, processed)
		assert.Nil(t, errMsg)
		assert.Equal(t, domain.PaymentStatusSucceeded, testutil.GetPaymentStatus(t, db, seeded.ID))
	})

	t.Run("unmapped vendor status surfaces on the log", func(t *testing.T) {
		payload := `{"id":"evt_4","type":"payment_intent.oddity","data":{"object":{"id":"pi_wh_1","status":"brand_new_state"}}}`

		result, err := svc.HandleWebhook(ctx, "stripe", []byte(payload), stripeWebhookHeaders(payload, webhookSecret))
		require.NoError(t, err)

		processed, errMsg := webhookLogState(t, db, result.LogID)
		assert.False(t, processed)
		require.NotNil(t, errMsg)
		assert.Contains(t, *errMsg, "brand_new_state")
	})
}
