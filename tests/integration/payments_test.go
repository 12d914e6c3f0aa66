//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentGatedAccept(t *testing.T) {
	client := newTestClient(t)
	doctorID := newUserID()
	patientID := newUserID()
	patient := client.WithToken(tokenFor(t, patientID, domain.RolePatient))
	doctor := client.WithToken(tokenFor(t, doctorID, domain.RoleDoctor))

	item := createWalkIn(t, patient, doctorID)

	// Doctor attaches a charge.
	resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/payment",
		map[string]any{"amount_cents": 5000})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var handle handleEnvelope
	testutil.DecodeJSON(t, resp, &handle)
	assert.Equal(t, item.ID, handle.Data.QueueItemID)
	assert.Equal(t, int64(5000), handle.Data.AmountCents)

	// Accept is blocked until the charge is paid.
	resp, err = doctor.POST("/api/v1/queue/"+item.ID+"/accept", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "payment_required", body.Error.Code)

	// The item reflects the outstanding charge.
	resp, err = patient.GET("/api/v1/queue/" + item.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got itemEnvelope
	testutil.DecodeJSON(t, resp, &got)
	assert.Equal(t, domain.PaymentPending, got.Data.PaymentStatus)

	// Patient confirms the checkout.
	resp, err = patient.POST("/api/v1/payments/"+handle.Data.PaymentID+"/confirm", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var intent intentEnvelope
	testutil.DecodeJSON(t, resp, &intent)
	assert.Equal(t, domain.PaymentIntentPaid, intent.Data.Status)
	require.NotNil(t, intent.Data.PaidAt)

	// Accept now goes through and the paid state sticks to the item.
	resp, err = doctor.POST("/api/v1/queue/"+item.ID+"/accept", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted itemEnvelope
	testutil.DecodeJSON(t, resp, &accepted)
	assert.Equal(t, domain.QueueStatusAccepted, accepted.Data.Status)
	assert.Equal(t, domain.PaymentPaid, accepted.Data.PaymentStatus)
}

func TestPaymentConfirmAuthorization(t *testing.T) {
	client := newTestClient(t)
	doctorID := newUserID()
	patientID := newUserID()
	patient := client.WithToken(tokenFor(t, patientID, domain.RolePatient))
	doctor := client.WithToken(tokenFor(t, doctorID, domain.RoleDoctor))

	item := createWalkIn(t, patient, doctorID)
	resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/payment",
		map[string]any{"amount_cents": 2500})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var handle handleEnvelope
	testutil.DecodeJSON(t, resp, &handle)

	t.Run("another patient cannot confirm", func(t *testing.T) {
		outsider := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))
		resp, err := outsider.POST("/api/v1/payments/"+handle.Data.PaymentID+"/confirm", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown intent", func(t *testing.T) {
		resp, err := patient.POST("/api/v1/payments/"+newUserID()+"/confirm", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("repeated confirm is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, err := patient.POST("/api/v1/payments/"+handle.Data.PaymentID+"/confirm", nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()
		}
	})
}

func TestEnablePaymentTwiceReturnsSameHandle(t *testing.T) {
	client := newTestClient(t)
	doctorID := newUserID()
	patient := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))
	doctor := client.WithToken(tokenFor(t, doctorID, domain.RoleDoctor))

	item := createWalkIn(t, patient, doctorID)

	var handles [2]handleEnvelope
	for i := range handles {
		resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/payment",
			map[string]any{"amount_cents": 5000})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		testutil.DecodeJSON(t, resp, &handles[i])
	}
	assert.Equal(t, handles[0].Data.PaymentID, handles[1].Data.PaymentID)
}
