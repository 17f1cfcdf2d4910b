package model

import "time"

// Reminder is a scheduled email message
type Reminder struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Message       string    `json:"message"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Sent          bool      `json:"sent"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IsDue reports whether the reminder should be delivered at now
func (r *Reminder) IsDue(now time.Time) bool {
	return !r.Sent && !r.ScheduledTime.After(now)
}
