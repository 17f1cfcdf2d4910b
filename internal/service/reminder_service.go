package service

import (
	"context"
	"errors"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/model"
	"github.com/remindmail/remindmail/internal/repository"
)

// Accepted layouts for ScheduledTime. Layouts without an offset are read in the service location.
var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ReminderStore is the persistence contract the service depends on.
// Implementations assign ID and CreatedAt on Insert and return
// repository.ErrNotFound from MarkSent for unknown IDs.
type ReminderStore interface {
	Insert(ctx context.Context, reminder *model.Reminder) error
	List(ctx context.Context) ([]model.Reminder, error)
	FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkSent(ctx context.Context, id string) error
}

// CreatedRecorder is notified of each persisted reminder
type CreatedRecorder interface {
	ReminderCreated()
}

// CreateReminderInput is the raw user submission
type CreateReminderInput struct {
	Email         string `json:"email"`
	Message       string `json:"message"`
	ScheduledTime string `json:"dateTime"`
}

// ReminderService implements the reminder lifecycle
type ReminderService struct {
	store    ReminderStore
	recorder CreatedRecorder
	loc      *time.Location
	log      *logger.Logger
}

// NewReminderService creates a new ReminderService
func NewReminderService(store ReminderStore, recorder CreatedRecorder, log *logger.Logger) *ReminderService {
	return &ReminderService{
		store:    store,
		recorder: recorder,
		loc:      time.Local,
		log:      log.WithComponent("reminder_service"),
	}
}

// WithLocation sets the zone used for timestamps submitted without an offset
func (s *ReminderService) WithLocation(loc *time.Location) *ReminderService {
	s.loc = loc
	return s
}

// Create validates the submission and stores a new unsent reminder
func (s *ReminderService) Create(ctx context.Context, in CreateReminderInput) (*model.Reminder, error) {
	reminder, err := s.parse(in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, reminder); err != nil {
		return nil, persistenceError("create reminder", err)
	}

	if s.recorder != nil {
		s.recorder.ReminderCreated()
	}
	s.log.Info().
		Str("reminder_id", reminder.ID).
		Time("scheduled_time", reminder.ScheduledTime).
		Msg("reminder scheduled")
	return reminder, nil
}

// ListAll returns every reminder in ascending scheduled time
func (s *ReminderService) ListAll(ctx context.Context) ([]model.Reminder, error) {
	reminders, err := s.store.List(ctx)
	if err != nil {
		return nil, persistenceError("list reminders", err)
	}
	slices.SortStableFunc(reminders, func(a, b model.Reminder) int {
		return a.ScheduledTime.Compare(b.ScheduledTime)
	})
	return reminders, nil
}

// FindDue returns unsent reminders whose scheduled time is not after now
func (s *ReminderService) FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	reminders, err := s.store.FindDue(ctx, now)
	if err != nil {
		return nil, persistenceError("find due reminders", err)
	}

	// Never hand out a record the store should have filtered
	due := reminders[:0]
	for _, r := range reminders {
		if r.IsDue(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

// MarkSent flags a reminder as delivered. Marking an already sent reminder succeeds.
func (s *ReminderService) MarkSent(ctx context.Context, id string) error {
	if err := s.store.MarkSent(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return persistenceError("mark reminder sent", err)
	}
	return nil
}

func (s *ReminderService) parse(in CreateReminderInput) (*model.Reminder, error) {
	addr := strings.TrimSpace(in.Email)
	if addr == "" {
		return nil, &ValidationError{Field: "email", Message: "is required"}
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return nil, &ValidationError{Field: "email", Message: "is not a valid address"}
	}

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, &ValidationError{Field: "message", Message: "is required"}
	}

	scheduled, err := s.parseTime(strings.TrimSpace(in.ScheduledTime))
	if err != nil {
		return nil, err
	}

	return &model.Reminder{
		Email:         parsed.Address,
		Message:       message,
		ScheduledTime: scheduled,
		Sent:          false,
	}, nil
}

func (s *ReminderService) parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{Field: "dateTime", Message: "is required"}
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, value, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "dateTime", Message: "is not a valid timestamp"}
}
