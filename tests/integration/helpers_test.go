//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/queue"
	"github.com/meddesk/consultq/internal/testutil"
	"github.com/stretchr/testify/require"
)

// itemEnvelope matches the {"data": ...} success envelope.
type itemEnvelope struct {
	Data domain.QueueItem `json:"data"`
}

type itemListEnvelope struct {
	Data []domain.QueueItem `json:"data"`
}

type startEnvelope struct {
	Data queue.StartResponse `json:"data"`
}

type handleEnvelope struct {
	Data domain.PaymentHandle `json:"data"`
}

type intentEnvelope struct {
	Data domain.PaymentIntent `json:"data"`
}

// errorEnvelope matches the {"error": {...}} failure envelope.
type errorEnvelope struct {
	Error struct {
		Code              string    `json:"code"`
		Message           string    `json:"message"`
		Window            string    `json:"window"`
		ResetAt           time.Time `json:"reset_at"`
		RetryAfterSeconds int       `json:"retry_after_seconds"`
	} `json:"error"`
}

func newUserID() string {
	return uuid.New().String()
}

// seedAppointment inserts a confirmed appointment directly; appointments are
// managed by the scheduling service, the engine only reads them.
func seedAppointment(t *testing.T, doctorID, patientID string, startAt, endAt time.Time) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO appointments (doctor_user_id, patient_user_id, start_at, end_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		doctorID, patientID, startAt, endAt,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// backdateItem shifts a queue item's created_at so the lazy expiry check
// sees its wait deadline in the past.
func backdateItem(t *testing.T, itemID string, age time.Duration) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`UPDATE queue_items SET created_at = now() - $2::interval WHERE id = $1`,
		itemID, age.String(),
	)
	require.NoError(t, err)
}

// backdateQuotaWindow moves a patient's quota counter into a past window so
// tests can observe the rollover without waiting for real midnight.
func backdateQuotaWindow(t *testing.T, patientID, kind string, age time.Duration) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`UPDATE emergency_quotas SET window_start = window_start - $3::interval
		 WHERE patient_user_id = $1 AND window_kind = $2`,
		patientID, kind, age.String(),
	)
	require.NoError(t, err)
}

// itemStatus reads the stored status straight from the database.
func itemStatus(t *testing.T, itemID string) string {
	t.Helper()
	var status string
	err := testDB.QueryRow(context.Background(),
		`SELECT status FROM queue_items WHERE id = $1`, itemID,
	).Scan(&status)
	require.NoError(t, err)
	return status
}

// createWalkIn creates a pending walk-in item through the API.
func createWalkIn(t *testing.T, patient *testutil.Client, doctorID string) domain.QueueItem {
	t.Helper()
	resp, err := patient.POST("/api/v1/queue", map[string]any{
		"doctor_id":  doctorID,
		"entry_type": "walk_in",
		"reason":     "persistent headache",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body itemEnvelope
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

// decodeError decodes the error envelope of a failed response.
func decodeError(t *testing.T, resp *http.Response) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	testutil.DecodeJSON(t, resp, &body)
	return body
}

// outboxEventTypes returns delivered-or-pending event types recorded for an
// item, oldest first.
func outboxEventTypes(t *testing.T, itemID string) []string {
	t.Helper()
	rows, err := testDB.Query(context.Background(),
		`SELECT event_type FROM queue_events WHERE queue_item_id = $1 ORDER BY id`, itemID)
	require.NoError(t, err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var eventType string
		require.NoError(t, rows.Scan(&eventType))
		types = append(types, eventType)
	}
	require.NoError(t, rows.Err())
	return types
}
