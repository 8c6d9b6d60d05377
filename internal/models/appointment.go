package models

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// DateFormat and TimeFormat are the wire formats used for appointment
// dates and slot times throughout the coordination layer.
const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

// Appointment is a booked slot. Only the confirmed state (and the
// transient pending state during a create) occupies a slot; all three
// terminal states free it.
type Appointment struct {
	ID              int64      `json:"id"`
	ReferenceNumber string     `json:"reference_number"`
	Date            string     `json:"date"`     // "2006-01-02"
	StartTime       string     `json:"time"`     // "15:04"
	EndTime         string     `json:"end_time"` // "15:04"
	RestaurantName  string     `json:"restaurant_name"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// AppointmentRequest is the validated payload handed to the core by the
// upstream request layer. Contact fields are carried for downstream
// collaborators (email rendering) and are not persisted here.
type AppointmentRequest struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	RestaurantName string `json:"restaurant_name"`
	GuestName      string `json:"guest_name,omitempty"`
	GuestEmail     string `json:"guest_email,omitempty"`
	GuestPhone     string `json:"guest_phone,omitempty"`
}

// TimeSlot is a reference catalog entry describing bookable hours for a
// weekday. The catalog is seeded once and read-only afterwards.
type TimeSlot struct {
	DayOfWeek       time.Weekday `json:"day_of_week"`
	StartTime       string       `json:"start_time"`
	EndTime         string       `json:"end_time"`
	DurationMinutes int          `json:"duration_minutes"`
}

// BlockedDate makes every slot on a date unavailable regardless of
// booking state.
type BlockedDate struct {
	Date      string    `json:"date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// SlotAvailability is a single catalog slot with its availability for a
// concrete date.
type SlotAvailability struct {
	Time        string `json:"time"`
	IsAvailable bool   `json:"is_available"`
}
