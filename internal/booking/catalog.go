package booking

import (
	"fmt"
	"time"

	"github.com/tabletime/bookingd/internal/models"
)

// DefaultSlotDurationMinutes is the length of a catalog slot.
const DefaultSlotDurationMinutes = 60

// DefaultExpectedSlotCount is the seeded catalog size the health check
// compares against: 5 weekdays x 8 hourly slots.
const DefaultExpectedSlotCount = 40

// DefaultTimeSlots returns the business-hours catalog: Monday through
// Friday, hourly slots from 09:00 to 17:00.
func DefaultTimeSlots() []models.TimeSlot {
	days := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}

	var slots []models.TimeSlot
	for _, day := range days {
		for hour := 9; hour < 17; hour++ {
			slots = append(slots, models.TimeSlot{
				DayOfWeek:       day,
				StartTime:       fmt.Sprintf("%02d:00", hour),
				EndTime:         fmt.Sprintf("%02d:00", hour+1),
				DurationMinutes: DefaultSlotDurationMinutes,
			})
		}
	}
	return slots
}
