package handler

import (
	"errors"
	"mime"
	"net/http"

	"github.com/remindmail/remindmail/internal/service"
)

const maxFormBytes = 64 << 10

const (
	scheduleSuccessURL = "/schedule?success=true"
	scheduleErrorURL   = "/schedule?error=true"
)

// Home renders the landing page
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pageHome, pageData{Title: "Email Reminder App"})
}

// About renders the about page
func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pageAbout, pageData{Title: "About - Email Reminder App"})
}

// ScheduleForm renders the reminder form with the outcome of the last submission
func (h *Handler) ScheduleForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.renderPage(w, r, http.StatusOK, pageSchedule, pageData{
		Title:   "Schedule Reminder",
		Success: q.Get("success") == "true",
		Error:   q.Get("error") == "true",
	})
}

// SubmitSchedule creates a reminder from a form or JSON body and redirects
// back to the form with a success or error flag.
func (h *Handler) SubmitSchedule(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSchedule(w, r)
	if err != nil {
		h.log.Info().Err(err).Msg("unreadable schedule submission")
		http.Redirect(w, r, scheduleErrorURL, http.StatusFound)
		return
	}

	reminder, err := h.reminders.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			h.log.Info().Err(err).Msg("rejected reminder")
		} else {
			h.log.Error().Err(err).Msg("failed to create reminder")
		}
		http.Redirect(w, r, scheduleErrorURL, http.StatusFound)
		return
	}

	h.log.Debug().Str("reminder_id", reminder.ID).Msg("reminder scheduled")
	http.Redirect(w, r, scheduleSuccessURL, http.StatusFound)
}

// ListReminders renders every reminder ordered by scheduled time
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.reminders.ListAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list reminders")
		http.Error(w, "Error retrieving reminders", http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, http.StatusOK, pageReminders, pageData{Reminders: reminders})
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := h.pages.render(w, status, name, data); err != nil {
		h.log.Error().Err(err).Str("page", name).Str("path", r.URL.Path).Msg("failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func decodeSchedule(w http.ResponseWriter, r *http.Request) (service.CreateReminderInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	var in service.CreateReminderInput
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		err := readJSON(r, &in)
		return in, err
	}

	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.Email = r.PostForm.Get("email")
	in.Message = r.PostForm.Get("message")
	in.ScheduledTime = r.PostForm.Get("dateTime")
	return in, nil
}
