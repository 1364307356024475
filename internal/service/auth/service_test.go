package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/internal/store"
)

type fakeStore struct {
	users []store.Row
	logs  []store.Row
}

func (f *fakeStore) ReadAll(_ context.Context, table string) ([]store.Row, error) {
	if table == model.UsersTable {
		return f.users, nil
	}
	return f.logs, nil
}

func (f *fakeStore) AppendRow(_ context.Context, _ string, headers, values []string) error {
	row := store.Row{}
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		}
	}
	f.logs = append(f.logs, row)
	return nil
}

func (f *fakeStore) UpsertByKey(context.Context, string, string, []string, store.Row) error {
	return nil
}
func (f *fakeStore) EnsureSchema(context.Context, string, []string) error { return nil }

func newTestService(t *testing.T, users []store.Row) (*Service, *fakeStore) {
	t.Helper()
	st := &fakeStore{users: users}
	reader := cache.NewReader(st, cache.NewMemory(time.Minute), &cache.Options{BackoffUnit: time.Millisecond}, zerolog.Nop())
	auditor := audit.NewService(st, reader, zerolog.Nop())
	return NewService(Config{Secret: "test-secret"}, reader, auditor, zerolog.Nop()), st
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, st := newTestService(t, []store.Row{
		{"Username": "clerk1", "DisplayName": "Clerk One", "PasswordHash": hash(t, "s3cret"), "Role": model.RoleClerk},
	})

	token, user, err := svc.Login(context.Background(), "clerk1", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "clerk1", user.Username)
	assert.Equal(t, model.RoleClerk, user.Role)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "clerk1", claims.Subject)
	assert.Equal(t, "Clerk One", claims.DisplayName)
	assert.Equal(t, model.RoleClerk, claims.Role)

	require.Len(t, st.logs, 1)
	assert.Equal(t, model.AuditActionLogin, st.logs[0]["Action"])
}

func TestLoginUsernameCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t, []store.Row{
		{"Username": "Clerk1", "PasswordHash": hash(t, "s3cret")},
	})

	_, user, err := svc.Login(context.Background(), "  clerk1 ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Clerk1", user.Username)
	assert.Equal(t, model.RoleClerk, user.Role, "missing role defaults to clerk")
}

func TestLoginWrongPassword(t *testing.T) {
	svc, st := newTestService(t, []store.Row{
		{"Username": "clerk1", "PasswordHash": hash(t, "s3cret")},
	})

	_, _, err := svc.Login(context.Background(), "clerk1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, st.logs)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, _, err := svc.Login(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsTamperedAndForeignTokens(t *testing.T) {
	svc, _ := newTestService(t, []store.Row{
		{"Username": "clerk1", "PasswordHash": hash(t, "s3cret")},
	})

	token, _, err := svc.Login(context.Background(), "clerk1", "s3cret")
	require.NoError(t, err)

	_, err = svc.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other, _ := newTestService(t, []store.Row{
		{"Username": "clerk1", "PasswordHash": hash(t, "s3cret")},
	})
	other.cfg.Secret = "different-secret"
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, _ := newTestService(t, []store.Row{
		{"Username": "clerk1", "PasswordHash": hash(t, "s3cret")},
	})
	svc.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }

	token, _, err := svc.Login(context.Background(), "clerk1", "s3cret")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
