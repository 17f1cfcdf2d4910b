// Package poller delivers due reminders on a fixed cron schedule.
//
// Each tick scans the store for due reminders and processes them one at a
// time: send, then mark sent. A failed send leaves the reminder unsent so the
// next tick picks it up again. Ticks never overlap; a tick that fires while
// another is running is skipped.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/remindmail/remindmail/internal/email"
	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/metrics"
	"github.com/remindmail/remindmail/internal/model"
	"github.com/remindmail/remindmail/internal/service"
)

// Poller errors
var (
	ErrTickInProgress = errors.New("previous tick still running")
	ErrStopped        = errors.New("poller stopped")
)

// ReminderSource is the slice of the reminder service the poller needs
type ReminderSource interface {
	FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkSent(ctx context.Context, id string) error
}

// Recorder receives delivery outcomes
type Recorder interface {
	ReminderDelivered()
	DeliveryFailed(stage string)
	TickFinished(result string, took time.Duration)
}

// Config controls scheduling and delivery
type Config struct {
	Schedule    string
	SendTimeout time.Duration
	RunOnStart  bool
	Subject     string
}

// TickResult summarizes one iteration
type TickResult struct {
	Due     int
	Sent    int
	Failed  int
	Skipped bool
}

// Poller runs the scan-and-send loop
type Poller struct {
	source   ReminderSource
	sender   email.Sender
	recorder Recorder
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	cron     *cron.Cron

	running atomic.Bool

	mu      sync.Mutex
	stopped bool
	inGroup sync.WaitGroup
	cancel  context.CancelFunc
}

// New validates the schedule and creates a Poller. recorder may be nil.
func New(source ReminderSource, sender email.Sender, recorder Recorder, cfg Config, log *logger.Logger) (*Poller, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid poller schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Subject == "" {
		cfg.Subject = "Reminder App"
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	log = log.WithComponent("poller")
	return &Poller{
		source:   source,
		sender:   sender,
		recorder: recorder,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		cron: cron.New(
			cron.WithLogger(log.Cron()),
			cron.WithChain(cron.Recover(log.Cron())),
		),
	}, nil
}

// WithClock replaces the time source used to decide what is due
func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Start schedules the poller. Ticks run with a context derived from ctx
// that is cancelled once Stop has finished waiting.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if _, err := p.cron.AddFunc(p.cfg.Schedule, func() { p.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule poller: %w", err)
	}
	p.cron.Start()

	if p.cfg.RunOnStart {
		go p.run(ctx)
	}

	p.log.Info().Str("schedule", p.cfg.Schedule).Msg("poller started")
	return nil
}

// Stop halts scheduling and waits for a running tick until ctx expires.
// An interrupted send is never marked sent.
func (p *Poller) Stop(ctx context.Context) error {
	p.cron.Stop()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inGroup.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("poller did not finish in time: %w", ctx.Err())
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.log.Info().Msg("poller stopped")
	return err
}

func (p *Poller) run(ctx context.Context) {
	res, err := p.Tick(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress), errors.Is(err, ErrStopped):
	case err != nil:
		p.log.Error().Err(err).Msg("poller tick failed")
	case res.Due > 0:
		p.log.Info().
			Int("due", res.Due).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("poller tick finished")
	}
}

// Tick runs one iteration. It returns ErrTickInProgress without doing
// anything when another iteration has not finished yet.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.recorder.TickFinished(metrics.TickSkipped, 0)
		p.log.Warn().Msg("previous tick still running, skipping")
		return TickResult{Skipped: true}, ErrTickInProgress
	}
	defer p.running.Store(false)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return TickResult{Skipped: true}, ErrStopped
	}
	p.inGroup.Add(1)
	p.mu.Unlock()
	defer p.inGroup.Done()

	start := time.Now()
	var res TickResult

	due, err := p.source.FindDue(ctx, p.now())
	if err != nil {
		p.recorder.TickFinished(metrics.TickError, time.Since(start))
		return res, fmt.Errorf("failed to find due reminders: %w", err)
	}
	res.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		if p.deliver(ctx, r) {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	p.recorder.TickFinished(metrics.TickOK, time.Since(start))
	return res, nil
}

// deliver sends one reminder and marks it. It reports whether both steps succeeded.
func (p *Poller) deliver(ctx context.Context, r model.Reminder) bool {
	log := p.log.With().Str("reminder_id", r.ID).Str("email", r.Email).Logger()

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	if err := p.sender.Send(sendCtx, email.ReminderMessage(r.Email, p.cfg.Subject, r.Message)); err != nil {
		p.recorder.DeliveryFailed(metrics.StageSend)
		log.Warn().Err(err).Msg("failed to send reminder, will retry next tick")
		return false
	}

	if err := p.source.MarkSent(ctx, r.ID); err != nil {
		p.recorder.DeliveryFailed(metrics.StageMark)
		if errors.Is(err, service.ErrNotFound) {
			log.Warn().Msg("reminder vanished before it could be marked sent")
		} else {
			log.Error().Err(err).Msg("reminder sent but not marked, it may be sent again")
		}
		return false
	}

	p.recorder.ReminderDelivered()
	log.Info().Msg("reminder sent")
	return true
}

type nopRecorder struct{}

func (nopRecorder) ReminderDelivered()                 {}
func (nopRecorder) DeliveryFailed(string)              {}
func (nopRecorder) TickFinished(string, time.Duration) {}
