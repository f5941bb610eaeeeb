// Package schedule owns the two daily sync triggers and admission control
// for manual runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/queue"
)

// Admission errors returned by TriggerManual.
var (
	ErrJobProcessing    = errors.New("a sync job is already processing")
	ErrJobPending       = errors.New("a sync job is already pending")
	ErrScheduleImminent = errors.New("a scheduled sync starts soon")
)

// Runner executes a sync job by name.
type Runner interface {
	Run(ctx context.Context, name string) error
}

// Options wires a Manager.
type Options struct {
	Store     Store
	Jobs      jobs.Store
	Registry  jobs.Registry
	Queue     queue.Queue
	Runner    Runner
	UTCOffset int
	TZLabel   string
	// Window rejects manual runs this close to a scheduled run.
	Window time.Duration
	// Defaults maps slot to its initial HH:mm.
	Defaults map[int]string
}

// Manager schedules the daily slots and admits manual runs.
type Manager struct {
	opts    Options
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[int]cron.EntryID
	admit   sync.Mutex
	ctx     context.Context
	now     func() time.Time
}

// NewManager creates a stopped manager.
func NewManager(opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.TZLabel == "" {
		opts.TZLabel = fmt.Sprintf("UTC%+03d:00", opts.UTCOffset)
	}
	return &Manager{
		opts: opts,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
			cron.WithLogger(cronLogger{}),
		),
		entries: make(map[int]cron.EntryID),
		ctx:     context.Background(),
		now:     time.Now,
	}
}

// Start creates missing slots with their defaults, registers every active
// slot and starts the cron loop. Scheduled jobs run under ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	for _, slot := range Slots {
		clock, ok := m.opts.Defaults[slot]
		if !ok {
			continue
		}
		spec, err := CronSpec(clock, m.opts.UTCOffset)
		if err != nil {
			return fmt.Errorf("schedule: default for slot %d: %w", slot, err)
		}
		if err := m.opts.Store.EnsureDefault(ctx, Schedule{Slot: slot, Time: clock, CronSpec: spec, IsActive: true}); err != nil {
			return fmt.Errorf("schedule: ensure slot %d: %w", slot, err)
		}
	}

	list, err := m.opts.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("schedule: list: %w", err)
	}
	m.mu.Lock()
	for _, sc := range list {
		if !sc.IsActive {
			continue
		}
		spec, err := CronSpec(sc.Time, m.opts.UTCOffset)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("schedule: slot %d: %w", sc.Slot, err)
		}
		if err := m.register(sc.Slot, spec); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()
	m.cron.Start()
	logging.Info().Int("slots", len(list)).Str("timezone", m.opts.TZLabel).Msg("sync schedules started")
	return nil
}

// Stop halts the cron loop and returns a context done when running jobs end.
func (m *Manager) Stop() context.Context {
	return m.cron.Stop()
}

// register must be called with mu held.
func (m *Manager) register(slot int, spec string) error {
	id, err := m.cron.AddFunc(spec, func() { m.fire(slot) })
	if err != nil {
		return fmt.Errorf("schedule: register slot %d: %w", slot, err)
	}
	m.entries[slot] = id
	return nil
}

func (m *Manager) fire(slot int) {
	name := jobs.ScheduledName(slot)
	logging.Info().Str("job", name).Msg("scheduled sync firing")
	if err := m.opts.Runner.Run(m.ctx, name); err != nil {
		logging.Error().Err(err).Str("job", name).Msg("scheduled sync failed")
	}
}

// UpdateResult is the reply to a reschedule.
type UpdateResult struct {
	Message  string `json:"message"`
	Slot     int    `json:"slot"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

// UpdateSchedule persists a new wall time for slot and swaps its trigger.
func (m *Manager) UpdateSchedule(ctx context.Context, slot int, clock string) (UpdateResult, error) {
	if slot != 1 && slot != 2 {
		return UpdateResult{}, ErrUnknownSlot
	}
	spec, err := CronSpec(clock, m.opts.UTCOffset)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := m.opts.Store.Update(ctx, slot, clock, spec); err != nil {
		return UpdateResult{}, fmt.Errorf("schedule: update slot %d: %w", slot, err)
	}

	m.mu.Lock()
	if id, ok := m.entries[slot]; ok {
		m.cron.Remove(id)
		delete(m.entries, slot)
	}
	err = m.register(slot, spec)
	m.mu.Unlock()
	if err != nil {
		return UpdateResult{}, err
	}

	logging.Info().Int("slot", slot).Str("time", clock).Str("cron", spec).Msg("sync schedule updated")
	return UpdateResult{
		Message:  fmt.Sprintf("Schedule %d updated to %s", slot, clock),
		Slot:     slot,
		Time:     clock,
		Timezone: m.opts.TZLabel,
	}, nil
}

// View is the reporting form of a schedule slot.
type View struct {
	Slot         int        `json:"slot"`
	Time         string     `json:"time"`
	IsActive     bool       `json:"isActive"`
	LastSyncTime *time.Time `json:"lastSyncTime"`
	NextRun      *time.Time `json:"nextRun"`
	Timezone     string     `json:"timezone"`
}

// Schedules lists both slots with their next run in campus time.
func (m *Manager) Schedules(ctx context.Context) ([]View, error) {
	list, err := m.opts.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	zone := time.FixedZone(m.opts.TZLabel, m.opts.UTCOffset*3600)
	now := m.now()
	out := make([]View, 0, len(list))
	for _, sc := range list {
		v := View{Slot: sc.Slot, Time: sc.Time, IsActive: sc.IsActive, LastSyncTime: sc.LastSyncAt, Timezone: m.opts.TZLabel}
		if sc.IsActive {
			if spec, err := CronSpec(sc.Time, m.opts.UTCOffset); err == nil {
				if next, err := NextRun(spec, now); err == nil {
					local := next.In(zone)
					v.NextRun = &local
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// TriggerResult is the reply to a manual trigger.
type TriggerResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	QueueID  string `json:"queueId,omitempty"`
	JobName  string `json:"jobName,omitempty"`
	Position int    `json:"position,omitempty"`
}

// TriggerManual admits and enqueues a manual sync. Only one job may be
// processing or pending, and none may start within the admission window.
func (m *Manager) TriggerManual(ctx context.Context) (TriggerResult, error) {
	m.admit.Lock()
	defer m.admit.Unlock()

	if err := m.checkAdmission(ctx); err != nil {
		return TriggerResult{Message: err.Error()}, err
	}

	name := jobs.ManualName()
	job, err := m.opts.Jobs.Enqueue(ctx, name)
	if err != nil {
		return TriggerResult{Message: "could not record manual sync"}, fmt.Errorf("schedule: enqueue job: %w", err)
	}
	res := TriggerResult{QueueID: job.ID, JobName: name}

	msg := queue.Message{ID: job.ID, Type: queue.TypeSync, JobName: name, EnqueuedAt: m.now()}
	if err := m.opts.Queue.Publish(ctx, msg); err != nil {
		_ = m.opts.Jobs.Finish(ctx, job.ID, jobs.StatusFailed, jobs.Stats{}, err.Error(), m.now())
		res.Message = "could not queue manual sync"
		return res, fmt.Errorf("schedule: publish job: %w", err)
	}

	logging.Info().Str("job", name).Str("queue_id", job.ID).Msg("manual sync queued")
	res.Success = true
	res.Message = "Manual sync queued"
	res.Position = 1
	return res, nil
}

func (m *Manager) checkAdmission(ctx context.Context) error {
	active, err := m.opts.Registry.Active(ctx)
	if err != nil {
		return fmt.Errorf("schedule: read registry: %w", err)
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: %s", ErrJobProcessing, active[0].Name)
	}
	for _, check := range []struct {
		status jobs.Status
		err    error
	}{{jobs.StatusProcessing, ErrJobProcessing}, {jobs.StatusPending, ErrJobPending}} {
		n, err := m.opts.Jobs.CountByStatus(ctx, check.status)
		if err != nil {
			return fmt.Errorf("schedule: count %s jobs: %w", check.status, err)
		}
		if n > 0 {
			return check.err
		}
	}

	list, err := m.opts.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("schedule: list: %w", err)
	}
	now := m.now()
	for _, sc := range list {
		if !sc.IsActive {
			continue
		}
		spec, err := CronSpec(sc.Time, m.opts.UTCOffset)
		if err != nil {
			continue
		}
		next, err := NextRun(spec, now)
		if err != nil {
			continue
		}
		if until := next.Sub(now); until <= m.opts.Window {
			return fmt.Errorf("%w: slot %d runs in %s", ErrScheduleImminent, sc.Slot, until.Round(time.Minute))
		}
	}
	return nil
}

// cronLogger routes robfig/cron logs into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
