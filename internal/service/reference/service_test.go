package reference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/internal/store"
)

type fakeStore struct {
	tables  map[string][]store.Row
	readErr error
	upserts []store.Row
}

func (f *fakeStore) ReadAll(_ context.Context, table string) ([]store.Row, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.tables[table], nil
}

func (f *fakeStore) AppendRow(_ context.Context, table string, headers, values []string) error {
	row := store.Row{}
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		}
	}
	f.tables[table] = append(f.tables[table], row)
	return nil
}

func (f *fakeStore) UpsertByKey(_ context.Context, table, keyColumn string, _ []string, record store.Row) error {
	f.upserts = append(f.upserts, record)
	for _, row := range f.tables[table] {
		if row[keyColumn] == record[keyColumn] {
			for k, v := range record {
				row[k] = v
			}
			return nil
		}
	}
	f.tables[table] = append(f.tables[table], record)
	return nil
}

func (f *fakeStore) EnsureSchema(context.Context, string, []string) error { return nil }

func newTestService(st *fakeStore) *Service {
	reader := cache.NewReader(st, cache.NewMemory(time.Minute), &cache.Options{BackoffUnit: time.Millisecond}, zerolog.Nop())
	auditor := audit.NewService(st, reader, zerolog.Nop())
	return NewService(st, reader, auditor, zerolog.Nop())
}

func TestOptionsFiltersByKind(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.ReferenceTable: {
			{"Kind": "payer", "Code": "DAMAN", "Label": "Daman"},
			{"Kind": "insurer", "Code": "AXA", "Label": "AXA"},
			{"Kind": "Payer", "Code": "CASH"}, // kind case-insensitive, label falls back to code
		},
	}}
	svc := newTestService(st)

	opts := svc.Options(context.Background(), "payer")
	require.Len(t, opts, 2)
	assert.Equal(t, "DAMAN", opts[0].Code)
	assert.Equal(t, "CASH", opts[1].Code)
	assert.Equal(t, "CASH", opts[1].Label)
}

func TestOptionsFallsBackToDefaultsWhenEmpty(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	svc := newTestService(st)

	opts := svc.Options(context.Background(), model.ReferenceKindPayer)
	assert.Equal(t, model.DefaultPayers, opts)
}

func TestOptionsFallsBackToDefaultsWhenUnreachable(t *testing.T) {
	st := &fakeStore{readErr: store.NewPermanent("read", model.ReferenceTable, errors.New("gone"))}
	svc := newTestService(st)

	opts := svc.Options(context.Background(), model.ReferenceKindInsurer)
	assert.Equal(t, model.DefaultInsurers, opts)
}

func TestUpsertWritesAndAudits(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	svc := newTestService(st)

	err := svc.Upsert(context.Background(), "admin", model.ReferenceOption{
		Kind: " Payer ",
		Code: " NAS ",
	})
	require.NoError(t, err)

	require.Len(t, st.upserts, 1)
	assert.Equal(t, store.Row{"Kind": "payer", "Code": "NAS", "Label": "NAS"}, st.upserts[0])

	require.Len(t, st.tables[model.LogsTable], 1)
	assert.Equal(t, model.AuditActionReferenceEdit, st.tables[model.LogsTable][0]["Action"])
}

func TestUpsertRejectsMissingKindOrCode(t *testing.T) {
	svc := newTestService(&fakeStore{tables: map[string][]store.Row{}})

	require.Error(t, svc.Upsert(context.Background(), "admin", model.ReferenceOption{Code: "NAS"}))
	require.Error(t, svc.Upsert(context.Background(), "admin", model.ReferenceOption{Kind: "payer"}))
}

func TestUpsertInvalidatesCache(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	svc := newTestService(st)

	// Prime the cache with the empty table, then upsert. The next read
	// must observe the new option, not the cached empty set.
	_ = svc.Options(context.Background(), model.ReferenceKindPayer)

	require.NoError(t, svc.Upsert(context.Background(), "admin", model.ReferenceOption{
		Kind: model.ReferenceKindPayer, Code: "NEXTCARE", Label: "Nextcare",
	}))

	opts := svc.Options(context.Background(), model.ReferenceKindPayer)
	require.Len(t, opts, 1)
	assert.Equal(t, "NEXTCARE", opts[0].Code)
}
