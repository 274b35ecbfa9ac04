package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"
)

var csvHeader = []string{
	"id", "action", "actor_id", "target_id",
	"resource_type", "resource_id", "ip", "created_at", "details",
}

// ExportCSV writes the filtered entry set to w as CSV. The details map is
// serialized as a single JSON column.
func (l *Log) ExportCSV(ctx context.Context, f Filter, w io.Writer) error {
	entries, err := l.store.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		record := []string{
			e.ID,
			e.Action,
			e.ActorID,
			e.TargetID,
			e.ResourceType,
			e.ResourceID,
			e.IP,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(details),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
