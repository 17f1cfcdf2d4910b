package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/model"
	"github.com/remindmail/remindmail/internal/service"
)

// ReminderService is the part of the reminder service the web layer uses
type ReminderService interface {
	Create(ctx context.Context, in service.CreateReminderInput) (*model.Reminder, error)
	ListAll(ctx context.Context) ([]model.Reminder, error)
}

// HealthChecker is a dependency reported by /health and /ready
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	reminders ReminderService
	log       *logger.Logger
	pages     *pages
	checks    []HealthChecker
}

// New creates a new Handler instance
func New(reminders ReminderService, log *logger.Logger, checks ...HealthChecker) (*Handler, error) {
	p, err := loadPages()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return &Handler{
		reminders: reminders,
		log:       log.WithComponent("handler"),
		pages:     p,
		checks:    checks,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
