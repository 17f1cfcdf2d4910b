package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/remindmail/remindmail/internal/email"
	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/metrics"
	"github.com/remindmail/remindmail/internal/model"
	"github.com/remindmail/remindmail/internal/repository"
	"github.com/remindmail/remindmail/internal/service"
)

// fakeStore implements service.ReminderStore in memory.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	reminders []model.Reminder
	dueErr    error
	markErr   error
}

func (f *fakeStore) Insert(ctx context.Context, r *model.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = fmt.Sprintf("rem-%d", f.seq)
	r.CreatedAt = time.Now()
	f.reminders = append(f.reminders, *r)
	return nil
}

func (f *fakeStore) List(ctx context.Context) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Reminder(nil), f.reminders...), nil
}

func (f *fakeStore) FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	var due []model.Reminder
	for _, r := range f.reminders {
		if r.IsDue(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.reminders {
		if f.reminders[i].ID == id {
			f.reminders[i].Sent = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) get(id string) model.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reminders {
		if r.ID == id {
			return r
		}
	}
	return model.Reminder{}
}

// fakeSender records every message and fails when sendFunc says so.
type fakeSender struct {
	mu       sync.Mutex
	sent     []email.Message
	sendFunc func(ctx context.Context, msg email.Message) error
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn := f.sendFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, msg)
	}
	return nil
}

func (f *fakeSender) messages() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.sent...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *fakeStore
	svc     *service.ReminderService
	sender  *fakeSender
	metrics *metrics.Metrics
	clock   *clock
	poller  *Poller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   &fakeStore{},
		sender:  &fakeSender{},
		metrics: metrics.New(),
		clock:   &clock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = service.NewReminderService(f.store, f.metrics, logger.Nop()).WithLocation(time.UTC)

	p, err := New(f.svc, f.sender, f.metrics, Config{Schedule: "* * * * *", Subject: "Reminder App"}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.poller = p.WithClock(f.clock.Now)
	return f
}

func (f *fixture) create(t *testing.T, addr, msg string, at time.Time) *model.Reminder {
	t.Helper()
	r, err := f.svc.Create(context.Background(), service.CreateReminderInput{
		Email:         addr,
		Message:       msg,
		ScheduledTime: at.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return r
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	_, err := New(&fakeStore{}, &fakeSender{}, nil, Config{Schedule: "every minute"}, logger.Nop())
	if err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestTick_PastReminderIsSentOnceAndMarked(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "ada@example.com", "take the cake out", f.clock.Now().Add(-time.Minute))

	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Due != 1 || res.Sent != 1 || res.Failed != 0 {
		t.Errorf("Tick() = %+v, want 1 due, 1 sent", res)
	}

	msgs := f.sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("Send called %d times, want 1", len(msgs))
	}
	if msgs[0].To != "ada@example.com" {
		t.Errorf("To = %q, want %q", msgs[0].To, "ada@example.com")
	}
	if msgs[0].TextBody != "take the cake out" {
		t.Errorf("TextBody = %q, want stored message", msgs[0].TextBody)
	}
	if msgs[0].Subject != "Reminder App" {
		t.Errorf("Subject = %q", msgs[0].Subject)
	}
	if !f.store.get(r.ID).Sent {
		t.Error("reminder should be marked sent")
	}

	// A second tick must not resend
	if _, err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if n := len(f.sender.messages()); n != 1 {
		t.Errorf("Send called %d times after second tick, want 1", n)
	}
	if got := testutil.ToFloat64(f.metrics.RemindersSent); got != 1 {
		t.Errorf("delivered counter = %v, want 1", got)
	}
}

func TestTick_FutureReminderWaitsForScheduledTime(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "ada@example.com", "standup", f.clock.Now().Add(time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := f.poller.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		f.clock.Advance(time.Minute)
	}
	if n := len(f.sender.messages()); n != 0 {
		t.Fatalf("Send called %d times before scheduled time, want 0", n)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if n := len(f.sender.messages()); n != 1 {
		t.Errorf("Send called %d times after scheduled time, want 1", n)
	}
	if !f.store.get(r.ID).Sent {
		t.Error("reminder should be marked sent")
	}
}

func TestTick_SendFailureLeavesReminderDue(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		return &email.TransportError{Provider: "smtp", Err: errors.New("421 try later")}
	}

	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("Tick() = %+v, want 1 failed", res)
	}
	if f.store.get(r.ID).Sent {
		t.Fatal("failed send must not mark the reminder sent")
	}

	due, err := f.svc.FindDue(context.Background(), f.clock.Now())
	if err != nil {
		t.Fatalf("FindDue() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != r.ID {
		t.Fatalf("FindDue() = %+v, want the failed reminder again", due)
	}

	// Next tick succeeds once the transport recovers
	f.sender.mu.Lock()
	f.sender.sendFunc = nil
	f.sender.mu.Unlock()
	if _, err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !f.store.get(r.ID).Sent {
		t.Error("reminder should be marked sent after retry")
	}
	if got := testutil.ToFloat64(f.metrics.DeliveryFailures.WithLabelValues(metrics.StageSend)); got != 1 {
		t.Errorf("send failures = %v, want 1", got)
	}
}

func TestTick_FailureDoesNotStopRemainingReminders(t *testing.T) {
	f := newFixture(t)
	base := f.clock.Now()
	f.create(t, "first@example.com", "1", base.Add(-3*time.Minute))
	f.create(t, "bad@example.com", "2", base.Add(-2*time.Minute))
	f.create(t, "third@example.com", "3", base.Add(-1*time.Minute))

	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		if msg.To == "bad@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}

	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Due != 3 || res.Sent != 2 || res.Failed != 1 {
		t.Errorf("Tick() = %+v, want 3 due, 2 sent, 1 failed", res)
	}

	msgs := f.sender.messages()
	order := []string{"first@example.com", "bad@example.com", "third@example.com"}
	if len(msgs) != len(order) {
		t.Fatalf("Send called %d times, want %d", len(msgs), len(order))
	}
	for i, want := range order {
		if msgs[i].To != want {
			t.Errorf("send %d went to %q, want %q", i, msgs[i].To, want)
		}
	}
}

func TestTick_MarkFailureIsLoggedAndSkipped(t *testing.T) {
	f := newFixture(t)
	f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))
	f.create(t, "bob@example.com", "m", f.clock.Now().Add(-time.Minute))
	f.store.markErr = repository.ErrNotFound

	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Sent != 0 || res.Failed != 2 {
		t.Errorf("Tick() = %+v, want 2 failed", res)
	}
	if n := len(f.sender.messages()); n != 2 {
		t.Errorf("Send called %d times, want 2", n)
	}
	if got := testutil.ToFloat64(f.metrics.DeliveryFailures.WithLabelValues(metrics.StageMark)); got != 2 {
		t.Errorf("mark failures = %v, want 2", got)
	}
}

func TestTick_StoreFailureIsReturnedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.store.dueErr = errors.New("connection reset")

	_, err := f.poller.Tick(context.Background())
	if !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("Tick() error = %v, want ErrPersistence", err)
	}
	if got := testutil.ToFloat64(f.metrics.PollerTicks.WithLabelValues(metrics.TickError)); got != 1 {
		t.Errorf("error ticks = %v, want 1", got)
	}

	// The next tick works independently
	f.store.dueErr = nil
	if _, err := f.poller.Tick(context.Background()); err != nil {
		t.Errorf("Tick() after recovery error = %v", err)
	}
}

func TestTick_OverlappingTickIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.poller.Tick(context.Background())
		done <- err
	}()

	<-entered
	res, err := f.poller.Tick(context.Background())
	if !errors.Is(err, ErrTickInProgress) {
		t.Errorf("overlapping Tick() error = %v, want ErrTickInProgress", err)
	}
	if !res.Skipped {
		t.Error("overlapping Tick() should report Skipped")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Tick() error = %v", err)
	}
	if n := len(f.sender.messages()); n != 1 {
		t.Errorf("Send called %d times, want 1", n)
	}
	if got := testutil.ToFloat64(f.metrics.PollerTicks.WithLabelValues(metrics.TickSkipped)); got != 1 {
		t.Errorf("skipped ticks = %v, want 1", got)
	}
}

func TestTick_SendTimeoutIsApplied(t *testing.T) {
	f := newFixture(t)
	f.poller.cfg.SendTimeout = 20 * time.Millisecond
	r := f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}

	res, err := f.poller.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Tick() = %+v, want 1 failed", res)
	}
	if f.store.get(r.ID).Sent {
		t.Error("timed out send must not mark the reminder sent")
	}
}

func TestStartStop_RunsOnStartAndRejectsLaterTicks(t *testing.T) {
	f := newFixture(t)
	f.poller.cfg.RunOnStart = true
	r := f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	sent := make(chan struct{}, 1)
	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		sent <- struct{}{}
		return nil
	}

	if err := f.poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start tick did not send")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.poller.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !f.store.get(r.ID).Sent {
		t.Error("reminder should be marked sent once Stop has waited for the tick")
	}

	if _, err := f.poller.Tick(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Tick() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStop_InFlightSendCompletesBeforeCancel(t *testing.T) {
	f := newFixture(t)
	f.poller.cfg.RunOnStart = true
	r := f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := f.poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-entered

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopped <- f.poller.Stop(ctx)
	}()

	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !f.store.get(r.ID).Sent {
		t.Error("a send finishing within the shutdown timeout should be marked")
	}
}

func TestStop_DeadlineCancelsInFlightSend(t *testing.T) {
	f := newFixture(t)
	f.poller.cfg.RunOnStart = true
	r := f.create(t, "ada@example.com", "m", f.clock.Now().Add(-time.Minute))

	entered := make(chan struct{})
	f.sender.sendFunc = func(ctx context.Context, msg email.Message) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	if err := f.poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.poller.Stop(ctx); err == nil {
		t.Error("Stop() should report that the tick did not finish in time")
	}
	if f.store.get(r.ID).Sent {
		t.Error("a cancelled send must not be marked sent")
	}
}
