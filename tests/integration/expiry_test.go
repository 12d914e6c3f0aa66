//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyExpiry(t *testing.T) {
	client := newTestClient(t)
	doctorID := newUserID()
	patientID := newUserID()
	patient := client.WithToken(tokenFor(t, patientID, domain.RolePatient))
	doctor := client.WithToken(tokenFor(t, doctorID, domain.RoleDoctor))

	t.Run("read materializes expiry", func(t *testing.T) {
		item := createWalkIn(t, patient, doctorID)
		backdateItem(t, item.ID, time.Hour)

		resp, err := patient.GET("/api/v1/queue/" + item.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body itemEnvelope
		testutil.DecodeJSON(t, resp, &body)
		assert.Equal(t, domain.QueueStatusExpired, body.Data.Status)
		assert.True(t, body.Data.IsExpired)

		// The flip was persisted, not just rendered.
		assert.Equal(t, "expired", itemStatus(t, item.ID))
	})

	t.Run("accept refuses an overdue item", func(t *testing.T) {
		item := createWalkIn(t, patient, doctorID)
		backdateItem(t, item.ID, time.Hour)

		resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/accept", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp.Body.Close()

		assert.Equal(t, "expired", itemStatus(t, item.ID))
	})

	t.Run("overdue pending item can still be cancelled", func(t *testing.T) {
		item := createWalkIn(t, patient, doctorID)
		backdateItem(t, item.ID, time.Hour)

		resp, err := patient.POST("/api/v1/queue/"+item.ID+"/cancel", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		assert.Equal(t, "cancelled", itemStatus(t, item.ID))
	})

	t.Run("accepted items never expire", func(t *testing.T) {
		item := createWalkIn(t, patient, doctorID)
		resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/accept", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		backdateItem(t, item.ID, time.Hour)

		resp, err = patient.GET("/api/v1/queue/" + item.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body itemEnvelope
		testutil.DecodeJSON(t, resp, &body)
		assert.Equal(t, domain.QueueStatusAccepted, body.Data.Status)
		assert.False(t, body.Data.IsExpired)
	})
}

func TestDoctorQueueOrdering(t *testing.T) {
	client := newTestClient(t)
	doctorID := newUserID()
	doctor := client.WithToken(tokenFor(t, doctorID, domain.RoleDoctor))

	// Two walk-ins from distinct patients; one goes stale.
	patientA := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))
	patientB := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))
	fresh := createWalkIn(t, patientA, doctorID)
	stale := createWalkIn(t, patientB, doctorID)
	backdateItem(t, stale.ID, time.Hour)

	resp, err := doctor.GET("/api/v1/queue")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list itemListEnvelope
	testutil.DecodeJSON(t, resp, &list)
	require.Len(t, list.Data, 2)

	// Expired items sink to the bottom of the doctor's queue.
	assert.Equal(t, fresh.ID, list.Data[0].ID)
	assert.Equal(t, stale.ID, list.Data[1].ID)
	assert.True(t, list.Data[1].IsExpired)
}
