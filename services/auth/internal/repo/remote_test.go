package repo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/student_records/pkg/userclient"
)

func TestRemoteUsers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/users/11111111-1111-1111-1111-111111111111":
			_, _ = w.Write([]byte(`{"id":"11111111-1111-1111-1111-111111111111","email":"a@b.com","password_hash":"h","role":"Admin"}`))
		case "/internal/users/bad-id":
			_, _ = w.Write([]byte(`{"id":"bad-id","email":"a@b.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	users := &RemoteUsers{Client: userclient.NewClient(srv.URL, nil)}
	ctx := context.Background()

	u, err := users.FindByID(ctx, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Equal(t, "Admin", u.Role)
	assert.Equal(t, "h", u.PasswordHash)

	_, err = users.FindByEmail(ctx, "nobody@b.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = users.FindByID(ctx, "bad-id")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
