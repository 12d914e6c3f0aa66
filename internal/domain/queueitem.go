package domain

import "time"

// EntryType represents how a queue item entered the queue.
type EntryType string

// Entry types.
const (
	EntryTypeWalkIn             EntryType = "walk_in"
	EntryTypeAppointment        EntryType = "appointment"
	EntryTypeEmergencyBroadcast EntryType = "emergency_broadcast"
)

// QueueStatus represents the lifecycle state of a queue item.
type QueueStatus string

// Queue item statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusAccepted   QueueStatus = "accepted"
	QueueStatusRejected   QueueStatus = "rejected"
	QueueStatusCancelled  QueueStatus = "cancelled"
	QueueStatusExpired    QueueStatus = "expired"
	QueueStatusInProgress QueueStatus = "in_progress"
	QueueStatusClosed     QueueStatus = "closed"
)

// PaymentStatus represents the payment state attached to a queue item.
type PaymentStatus string

// Payment statuses.
const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentExpired     PaymentStatus = "expired"
)

// QueueItem represents one doctor-patient pairing attempt.
type QueueItem struct {
	ID               string        `json:"id"`
	DoctorUserID     string        `json:"doctor_user_id"`
	PatientUserID    string        `json:"patient_user_id"`
	EntryType        EntryType     `json:"entry_type"`
	AppointmentID    *string       `json:"appointment_id,omitempty"`
	EmergencyGroupID *string       `json:"emergency_group_id,omitempty"`
	Status           QueueStatus   `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	Reason           string        `json:"reason"`
	StatusNote       *string       `json:"status_note,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	AcceptedAt       *time.Time    `json:"accepted_at,omitempty"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`

	// Appointment is populated for appointment-tied items on reads.
	Appointment *Appointment `json:"appointment,omitempty"`

	// IsExpired is derived at read time, never stored.
	IsExpired bool `json:"is_expired"`
}

// IsValid checks if the entry type is valid.
func (t EntryType) IsValid() bool {
	return t == EntryTypeWalkIn || t == EntryTypeAppointment || t == EntryTypeEmergencyBroadcast
}

// IsTerminal reports whether the status permits no further transitions.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusRejected ||
		s == QueueStatusCancelled ||
		s == QueueStatusExpired ||
		s == QueueStatusClosed
}

// Blocks reports whether the payment status blocks accept/start.
func (p PaymentStatus) Blocks() bool {
	return p != PaymentNotRequired && p != PaymentPaid
}

// Consultation represents a live consultation session created when a queue
// item transitions to in_progress.
type Consultation struct {
	ID          string     `json:"id"`
	QueueItemID string     `json:"queue_item_id"`
	StartedAt   time.Time  `json:"started_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}
