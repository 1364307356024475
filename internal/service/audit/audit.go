// Package audit appends immutable action records to the Logs table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/store"
)

// LogError marks a failed audit append. The triggering business write
// is already committed when logging runs, so callers surface this
// without rolling anything back.
type LogError struct {
	Action string
	Err    error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("audit log append failed for %q: %v", e.Action, e.Err)
}

func (e *LogError) Unwrap() error { return e.Err }

type Service struct {
	store  store.Store
	reader *cache.Reader
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(st store.Store, reader *cache.Reader, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		reader: reader,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Log appends one entry (timestamp, user, action, detail JSON). The Logs
// header is ensured first; that call is idempotent. Failures come back
// as *LogError, never swallowed.
func (s *Service) Log(ctx context.Context, user, action string, detail interface{}) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return &LogError{Action: action, Err: err}
	}

	if err := s.store.EnsureSchema(ctx, model.LogsTable, model.LogsColumns); err != nil {
		return &LogError{Action: action, Err: err}
	}

	values := []string{
		s.now().UTC().Format(time.RFC3339),
		user,
		action,
		string(payload),
	}
	if err := s.store.AppendRow(ctx, model.LogsTable, model.LogsColumns, values); err != nil {
		return &LogError{Action: action, Err: err}
	}

	s.reader.Invalidate(ctx, model.LogsTable)
	s.logger.Info().Str("user", user).Str("action", action).Msg("audit entry written")
	return nil
}

// Recent returns the stored entries, newest last (store order).
func (s *Service) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := s.reader.Read(ctx, model.LogsTable)
	if err != nil {
		return nil, err
	}

	entries := make([]model.AuditEntry, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row["TS"])
		if err != nil {
			continue
		}
		entries = append(entries, model.AuditEntry{
			TS:      ts,
			User:    row["User"],
			Action:  row["Action"],
			Details: json.RawMessage(row["DetailsJSON"]),
		})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
