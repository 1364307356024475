// Package reference serves the dropdown masters (payers, insurers,
// clinicians) and lets admins maintain them.
package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/internal/store"
)

type Service struct {
	store   store.Store
	reader  *cache.Reader
	auditor *audit.Service
	logger  zerolog.Logger
}

func NewService(st store.Store, reader *cache.Reader, auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		reader:  reader,
		auditor: auditor,
		logger:  logger.With().Str("component", "reference").Logger(),
	}
}

// Options returns the dropdown values for a kind. An empty or
// unreachable Reference table falls back to the hardcoded defaults so
// the intake form always renders.
func (s *Service) Options(ctx context.Context, kind string) []model.ReferenceOption {
	kind = strings.ToLower(strings.TrimSpace(kind))

	rows, err := s.reader.Read(ctx, model.ReferenceTable)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("reference table unreachable, using defaults")
		return model.DefaultOptions(kind)
	}

	var out []model.ReferenceOption
	for _, row := range rows {
		if strings.ToLower(strings.TrimSpace(row["Kind"])) != kind {
			continue
		}
		code := strings.TrimSpace(row["Code"])
		if code == "" {
			continue
		}
		label := strings.TrimSpace(row["Label"])
		if label == "" {
			label = code
		}
		out = append(out, model.ReferenceOption{Kind: kind, Code: code, Label: label})
	}
	if len(out) == 0 {
		return model.DefaultOptions(kind)
	}
	return out
}

// Upsert writes one option keyed by Code, creating the Reference table
// on first use, and records the edit in the audit trail.
func (s *Service) Upsert(ctx context.Context, user string, opt model.ReferenceOption) error {
	opt.Kind = strings.ToLower(strings.TrimSpace(opt.Kind))
	opt.Code = strings.TrimSpace(opt.Code)
	if opt.Kind == "" || opt.Code == "" {
		return fmt.Errorf("reference option needs kind and code")
	}
	if opt.Label == "" {
		opt.Label = opt.Code
	}

	rec := store.Row{"Kind": opt.Kind, "Code": opt.Code, "Label": opt.Label}
	if err := s.store.UpsertByKey(ctx, model.ReferenceTable, "Code", model.ReferenceColumns, rec); err != nil {
		return err
	}

	if err := s.auditor.Log(ctx, user, model.AuditActionReferenceEdit, opt); err != nil {
		s.logger.Error().Err(err).Str("code", opt.Code).Msg("reference-edit audit failed")
	}

	s.reader.Invalidate(ctx, model.ReferenceTable)
	return nil
}
