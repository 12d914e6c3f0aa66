//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBroadcast(t *testing.T, patient *testutil.Client, doctorIDs []string) []domain.QueueItem {
	t.Helper()
	resp, err := patient.POST("/api/v1/queue/broadcast", map[string]any{
		"candidate_doctor_ids": doctorIDs,
		"reason":               "severe chest pain",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body itemListEnvelope
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

func TestEmergencyBroadcastFanOut(t *testing.T) {
	client := newTestClient(t)
	patientID := newUserID()
	patient := client.WithToken(tokenFor(t, patientID, domain.RolePatient))
	doctorIDs := []string{newUserID(), newUserID(), newUserID()}

	items := createBroadcast(t, patient, doctorIDs)
	require.Len(t, items, 3)

	group := items[0].EmergencyGroupID
	require.NotNil(t, group)
	seen := make(map[string]bool)
	for _, item := range items {
		assert.Equal(t, domain.EntryTypeEmergencyBroadcast, item.EntryType)
		assert.Equal(t, domain.QueueStatusPending, item.Status)
		assert.Equal(t, patientID, item.PatientUserID)
		require.NotNil(t, item.EmergencyGroupID)
		assert.Equal(t, *group, *item.EmergencyGroupID)
		seen[item.DoctorUserID] = true
	}
	assert.Len(t, seen, 3, "one sibling per candidate doctor")
}

func TestEmergencyBroadcastRace(t *testing.T) {
	client := newTestClient(t)
	patient := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))
	doctorIDs := []string{newUserID(), newUserID(), newUserID()}

	items := createBroadcast(t, patient, doctorIDs)
	require.Len(t, items, 3)

	// Every candidate doctor accepts their sibling at once. Exactly one
	// accept may win; the rest observe the conflict.
	type result struct {
		status int
		itemID string
	}
	results := make(chan result, len(items))
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item domain.QueueItem) {
			defer wg.Done()
			doctor := newTestClientWithoutValidation().WithToken(
				tokenFor(t, item.DoctorUserID, domain.RoleDoctor))
			resp, err := doctor.POST("/api/v1/queue/"+item.ID+"/accept", nil)
			if err != nil {
				t.Errorf("accept: %v", err)
				return
			}
			resp.Body.Close()
			results <- result{status: resp.StatusCode, itemID: item.ID}
		}(item)
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	var winnerID string
	for r := range results {
		switch r.status {
		case http.StatusOK:
			wins++
			winnerID = r.itemID
		case http.StatusConflict:
			conflicts++
		default:
			t.Errorf("unexpected status %d for item %s", r.status, r.itemID)
		}
	}
	assert.Equal(t, 1, wins, "exactly one doctor wins the race")
	assert.Equal(t, 2, conflicts)

	// Losing siblings were cancelled inside the winning transaction.
	for _, item := range items {
		status := itemStatus(t, item.ID)
		if item.ID == winnerID {
			assert.Equal(t, "accepted", status)
		} else {
			assert.Equal(t, "cancelled", status)
		}
	}
}

func TestEmergencyBroadcastValidation(t *testing.T) {
	client := newTestClient(t)
	patient := client.WithToken(tokenFor(t, newUserID(), domain.RolePatient))

	t.Run("reason required", func(t *testing.T) {
		resp, err := patient.POST("/api/v1/queue/broadcast", map[string]any{
			"candidate_doctor_ids": []string{newUserID()},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("too many candidates", func(t *testing.T) {
		ids := make([]string, 6)
		for i := range ids {
			ids[i] = newUserID()
		}
		resp, err := patient.POST("/api/v1/queue/broadcast", map[string]any{
			"candidate_doctor_ids": ids,
			"reason":               "emergency",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "too_many_candidates", body.Error.Code)
	})

	t.Run("doctors cannot broadcast", func(t *testing.T) {
		doctor := client.WithToken(tokenFor(t, newUserID(), domain.RoleDoctor))
		resp, err := doctor.POST("/api/v1/queue/broadcast", map[string]any{
			"candidate_doctor_ids": []string{newUserID()},
			"reason":               "emergency",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestEmergencyQuota(t *testing.T) {
	client := newTestClient(t)
	patientID := newUserID()
	patient := client.WithToken(tokenFor(t, patientID, domain.RolePatient))

	// The daily ceiling is 3 in the test config.
	for i := 0; i < 3; i++ {
		createBroadcast(t, patient, []string{newUserID()})
	}

	resp, err := patient.POST("/api/v1/queue/broadcast", map[string]any{
		"candidate_doctor_ids": []string{newUserID()},
		"reason":               "severe chest pain",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	body := decodeError(t, resp)
	assert.Equal(t, "emergency_limit_reached", body.Error.Code)
	assert.Equal(t, "daily", body.Error.Window)
	assert.Greater(t, body.Error.RetryAfterSeconds, 0)
	// The daily window resets at the next UTC midnight.
	next := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	assert.WithinDuration(t, next, body.Error.ResetAt, time.Minute)

	// Shift the exhausted daily counter into a past window to simulate the
	// midnight rollover: a fresh window means creation succeeds again.
	backdateQuotaWindow(t, patientID, "daily", 48*time.Hour)
	createBroadcast(t, patient, []string{newUserID()})
}
