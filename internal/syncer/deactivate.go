package syncer

import (
	"context"
	"errors"
	"strings"

	"campusgate/internal/jobs"
	"campusgate/internal/logging"
	"campusgate/internal/roster"
)

// ErrNoIDs is returned by Deactivate when no usable student id was given.
var ErrNoIDs = errors.New("sync: no student ids given")

// DeactivateResult summarises a bulk deactivation.
type DeactivateResult struct {
	JobName  string   `json:"jobName"`
	Archived int      `json:"archived"`
	NotFound []string `json:"notFound"`
	Exported int      `json:"exported"`
	Skipped  int      `json:"skipped"`
}

// Deactivate archives the given students in the mirror and uploads them
// with campus entry revoked, which sets their expiry in the past.
func (o *Orchestrator) Deactivate(ctx context.Context, ids []string) (DeactivateResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return DeactivateResult{}, ErrNoIDs
	}
	name := jobs.DeactivateName()
	res := DeactivateResult{JobName: name, NotFound: []string{}}
	log := logging.With().Str("component", "sync").Str("job", name).Logger()

	release, err := o.acquire(ctx, name, log)
	if err != nil {
		return res, err
	}
	defer release()

	err = o.track(ctx, name, log, func() (jobs.Stats, error) {
		var stats jobs.Stats
		archived, err := o.d.Mirror.Archive(ctx, ids)
		if err != nil {
			return stats, err
		}
		res.Archived, stats.Updated = len(archived), len(archived)
		res.NotFound = missingIDs(ids, archived)
		if len(res.NotFound) > 0 {
			log.Warn().Strs("ids", res.NotFound).Msg("students not in mirror")
		}
		if len(archived) == 0 {
			return stats, nil
		}

		records := make([]roster.SourceRecord, len(archived))
		for i, m := range archived {
			records[i] = m.Source()
			records[i].CampusEntry = "N"
		}
		exports, skipped := o.d.Transformer.TransformAll(records)
		res.Exported, res.Skipped = len(exports), len(skipped)
		stats.Exported, stats.Skipped = len(exports), len(skipped)
		if len(skipped) > 0 {
			if _, err := o.d.Audit.WriteSkipped(skipped); err != nil {
				log.Warn().Err(err).Msg("write skipped audit failed")
			}
		}
		if len(exports) == 0 {
			return stats, nil
		}
		return stats, o.upload(ctx, name, exports, log)
	})
	return res, err
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(ids []string, found []roster.MirrorRecord) []string {
	have := make(map[string]bool, len(found))
	for _, m := range found {
		have[m.StudentID] = true
	}
	missing := []string{}
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
