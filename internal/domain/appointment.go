package domain

import "time"

// Appointment is the scheduled visit a queue item may be anchored to.
// Appointment CRUD lives outside this service; the engine only reads the
// fixed start/end to compute the waiting-room window.
type Appointment struct {
	ID            string    `json:"id"`
	DoctorUserID  string    `json:"doctor_user_id"`
	PatientUserID string    `json:"patient_user_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Paid          bool      `json:"paid"`
}
