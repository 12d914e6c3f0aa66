package domain

// Role is the authenticated caller's role.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies the authenticated caller of a mutating operation.
// Authentication happens upstream; the engine only checks role and ownership.
type Actor struct {
	ID   string
	Role Role
}

// IsDoctor reports whether the actor acts as a doctor.
func (a Actor) IsDoctor() bool { return a.Role == RoleDoctor }

// IsPatient reports whether the actor acts as a patient.
func (a Actor) IsPatient() bool { return a.Role == RolePatient }
