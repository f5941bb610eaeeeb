// Package syncer drives the roster sync pipeline: fetch from the source,
// reconcile against the mirror, validate, export and upload to BioStar.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"campusgate/internal/biostar"
	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/mirror"
	"campusgate/internal/roster"
)

var (
	// ErrAlreadyRunning is returned when another job holds the registry.
	ErrAlreadyRunning = errors.New("sync: another job is already running")
	// ErrNotStarted wraps failures that happen before the job is recorded
	// as processing, so a queued job is still pending.
	ErrNotStarted = errors.New("sync: job not started")
)

// Source is an open connection to the external roster.
type Source interface {
	FetchAll(ctx context.Context) ([]roster.SourceRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// SourceOpener connects to the roster once per run.
type SourceOpener func(ctx context.Context) (Source, error)

// Mirror is the local copy of the roster.
type Mirror interface {
	Find(ctx context.Context, f mirror.Filter) ([]roster.MirrorRecord, error)
	Insert(ctx context.Context, records []roster.MirrorRecord) error
	Save(ctx context.Context, records []roster.MirrorRecord) error
	Archive(ctx context.Context, ids []string) ([]roster.MirrorRecord, error)
}

// Uploader pushes an export CSV to the access-control server.
type Uploader interface {
	Upload(ctx context.Context, path string) (*biostar.Result, error)
	Ping(ctx context.Context) error
}

// Auditor persists the per-run audit artifacts.
type Auditor interface {
	WriteSkipped(records []roster.SkippedRecord) ([]string, error)
	WriteSynced(records []roster.ExportRecord) ([]string, error)
}

// SlotMarker records the last successful run of a schedule slot.
type SlotMarker interface {
	MarkSynced(ctx context.Context, slot int, at time.Time) error
}

// Deps wires an Orchestrator.
type Deps struct {
	Open        SourceOpener
	Mirror      Mirror
	Transformer *roster.Transformer
	Uploader    Uploader
	Audit       Auditor
	Slots       SlotMarker
	Jobs        jobs.Store
	Registry    jobs.Registry
	Metrics     *Metrics
	// ExportDir holds the temporary upload CSV.
	ExportDir string
	// MirrorHealth pings the mirror database for TestConnection.
	MirrorHealth func(ctx context.Context) error
	// RegistryRefresh is how often a running job extends its registry
	// entry. Zero disables the refresh.
	RegistryRefresh time.Duration
}

// Orchestrator runs sync jobs one at a time.
type Orchestrator struct {
	d   Deps
	now func() time.Time
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.ExportDir == "" {
		d.ExportDir = os.TempDir()
	}
	return &Orchestrator{d: d, now: time.Now}
}

// Run executes the full pipeline under name. A job whose name, or any other
// job, is already active is skipped with ErrAlreadyRunning.
func (o *Orchestrator) Run(ctx context.Context, name string) error {
	log := logging.With().Str("component", "sync").Str("job", name).Logger()

	release, err := o.acquire(ctx, name, log)
	if err != nil {
		return err
	}
	defer release()

	return o.track(ctx, name, log, func() (jobs.Stats, error) {
		return o.pipeline(ctx, name, log)
	})
}

func (o *Orchestrator) acquire(ctx context.Context, name string, log zerolog.Logger) (func(), error) {
	ok, err := o.d.Registry.Acquire(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire registry: %w", ErrNotStarted, err)
	}
	if !ok {
		log.Warn().Msg("sync already running, skipping")
		return nil, ErrAlreadyRunning
	}
	stop, done := make(chan struct{}), make(chan struct{})
	go o.keepAlive(ctx, name, log, stop, done)
	return func() {
		close(stop)
		<-done
		// Release must happen even if ctx was cancelled mid-run.
		if err := o.d.Registry.Release(context.WithoutCancel(ctx), name); err != nil {
			log.Error().Err(err).Msg("release registry failed")
		}
	}, nil
}

// keepAlive extends the registry entry until stop is closed, so a run longer
// than the entry's expiry keeps other jobs out.
func (o *Orchestrator) keepAlive(ctx context.Context, name string, log zerolog.Logger, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if o.d.RegistryRefresh <= 0 {
		return
	}
	ticker := time.NewTicker(o.d.RegistryRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := o.d.Registry.Refresh(context.WithoutCancel(ctx), name); err != nil {
				log.Warn().Err(err).Msg("refresh registry entry failed")
			}
		}
	}
}

// track records the job's lifecycle around fn.
func (o *Orchestrator) track(ctx context.Context, name string, log zerolog.Logger, fn func() (jobs.Stats, error)) error {
	started := o.now()
	job, err := o.d.Jobs.Start(ctx, name, started)
	if err != nil {
		return fmt.Errorf("%w: record job start: %w", ErrNotStarted, err)
	}
	log.Info().Str("job_id", job.ID).Msg("sync started")

	stats, runErr := fn()

	status := jobs.StatusCompleted
	msg := ""
	if runErr != nil {
		status = jobs.StatusFailed
		if isPartial(runErr) {
			status = jobs.StatusPartial
		}
		msg = runErr.Error()
	}
	finished := o.now()
	if err := o.d.Jobs.Finish(context.WithoutCancel(ctx), job.ID, status, stats, msg, finished); err != nil {
		log.Error().Err(err).Msg("record job result failed")
	}
	o.d.Metrics.observe(status, finished.Sub(started), stats)

	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Err(runErr)
	}
	ev.Str("status", string(status)).
		Int("fetched", stats.Fetched).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("exported", stats.Exported).
		Int("skipped", stats.Skipped).
		Dur("took", finished.Sub(started)).
		Msg("sync finished")
	return runErr
}

func (o *Orchestrator) pipeline(ctx context.Context, name string, log zerolog.Logger) (jobs.Stats, error) {
	var stats jobs.Stats

	src, err := o.d.Open(ctx)
	if err != nil {
		return stats, fmt.Errorf("connect source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("close source failed")
		}
	}()

	records, err := src.FetchAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch source records: %w", err)
	}
	stats.Fetched = len(records)
	log.Info().Int("records", len(records)).Msg("source fetched")

	if err := o.reconcile(ctx, records, &stats, log); err != nil {
		return stats, err
	}

	if len(records) == 0 {
		log.Info().Msg("no source records, nothing to upload")
		o.markSynced(ctx, name, log)
		return stats, nil
	}

	exports, skipped := o.d.Transformer.TransformAll(records)
	stats.Exported, stats.Skipped = len(exports), len(skipped)
	if len(skipped) > 0 {
		log.Warn().Int("skipped", len(skipped)).Msg("records failed validation")
		if paths, err := o.d.Audit.WriteSkipped(skipped); err != nil {
			log.Warn().Err(err).Msg("write skipped audit failed")
		} else {
			log.Info().Strs("files", paths).Msg("skipped audit written")
		}
	}

	if len(exports) == 0 {
		log.Warn().Msg("no valid records to upload")
		o.markSynced(ctx, name, log)
		return stats, nil
	}

	err = o.upload(ctx, name, exports, log)
	if err != nil && !isPartial(err) {
		return stats, err
	}
	o.markSynced(ctx, name, log)
	return stats, err
}

func (o *Orchestrator) reconcile(ctx context.Context, records []roster.SourceRecord, stats *jobs.Stats, log zerolog.Logger) error {
	existing, err := o.d.Mirror.Find(ctx, mirror.Filter{})
	if err != nil {
		return fmt.Errorf("load mirror: %w", err)
	}
	res := roster.Reconcile(records, existing, o.now())
	if err := o.d.Mirror.Insert(ctx, res.ToCreate); err != nil {
		return fmt.Errorf("insert mirror rows: %w", err)
	}
	if err := o.d.Mirror.Save(ctx, res.ToUpdate); err != nil {
		return fmt.Errorf("save mirror rows: %w", err)
	}
	stats.Created, stats.Updated = len(res.ToCreate), len(res.ToUpdate)
	log.Info().Int("created", stats.Created).Int("updated", stats.Updated).Int("unchanged", res.Unchanged).
		Msg("mirror reconciled")
	return nil
}

// upload writes the export CSV, the synced audit snapshot and pushes the
// CSV. The temp file is always removed.
func (o *Orchestrator) upload(ctx context.Context, name string, exports []roster.ExportRecord, log zerolog.Logger) error {
	path, err := WriteExportCSV(o.d.ExportDir, name, exports)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", path).Msg("remove export csv failed")
		}
	}()

	if paths, err := o.d.Audit.WriteSynced(exports); err != nil {
		log.Warn().Err(err).Msg("write synced audit failed")
	} else {
		log.Info().Strs("files", paths).Msg("synced audit written")
	}

	res, err := o.d.Uploader.Upload(ctx, path)
	if err != nil {
		return fmt.Errorf("upload roster: %w", err)
	}
	log.Info().Int("rows", res.Rows).Int("attempts", res.Attempts).Str("attachment", res.Filename).Msg("roster uploaded")
	return nil
}

func (o *Orchestrator) markSynced(ctx context.Context, name string, log zerolog.Logger) {
	slot, ok := jobs.SlotFromName(name)
	if !ok || o.d.Slots == nil {
		return
	}
	if err := o.d.Slots.MarkSynced(ctx, slot, o.now()); err != nil {
		log.Warn().Err(err).Int("slot", slot).Msg("update last sync time failed")
	}
}

func isPartial(err error) bool {
	var ie *biostar.ImportError
	return errors.As(err, &ie) && ie.Partial()
}
