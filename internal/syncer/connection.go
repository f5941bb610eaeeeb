package syncer

import (
	"context"
	"errors"
)

// ConnectionReport is the result of TestConnection.
type ConnectionReport struct {
	Success            bool              `json:"success"`
	SQLServerConnected bool              `json:"sqlServerConnected"`
	BiostarConnected   bool              `json:"biostarConnected"`
	PostgresConnected  bool              `json:"postgresConnected"`
	Details            map[string]string `json:"details"`
}

// TestConnection checks the source, BioStar and the mirror database
// without changing any state.
func (o *Orchestrator) TestConnection(ctx context.Context) ConnectionReport {
	rep := ConnectionReport{Details: make(map[string]string, 3)}
	rep.SQLServerConnected = o.check(rep.Details, "sqlServer", func() error {
		src, err := o.d.Open(ctx)
		if err != nil {
			return err
		}
		defer src.Close()
		return src.Ping(ctx)
	})
	rep.BiostarConnected = o.check(rep.Details, "biostar", func() error {
		return o.d.Uploader.Ping(ctx)
	})
	rep.PostgresConnected = o.check(rep.Details, "postgres", func() error {
		if o.d.MirrorHealth == nil {
			return errors.New("not configured")
		}
		return o.d.MirrorHealth(ctx)
	})
	rep.Success = rep.SQLServerConnected && rep.BiostarConnected && rep.PostgresConnected
	return rep
}

func (o *Orchestrator) check(details map[string]string, key string, fn func() error) bool {
	if err := fn(); err != nil {
		details[key] = err.Error()
		return false
	}
	details[key] = "ok"
	return true
}
