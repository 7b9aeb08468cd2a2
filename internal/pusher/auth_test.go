package pusher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPAuthorizer(t *testing.T) {
	var gotForm map[string]string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{"socket_id": r.PostForm.Get("socket_id"), "channel_name": r.PostForm.Get("channel_name")}
		gotHeader = r.Header.Get("Authorization")
		if gotHeader != "Bearer token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"auth":"key:sig"}`))
	}))
	defer srv.Close()

	a := &HTTPAuthorizer{Endpoint: srv.URL, Header: http.Header{"Authorization": {"Bearer token"}}}
	auth, err := a.Authorize(context.Background(), "1.2", "private-lighthouse-1")
	require.NoError(t, err)
	require.Equal(t, Auth{Auth: "key:sig"}, auth)
	require.Equal(t, map[string]string{"socket_id": "1.2", "channel_name": "private-lighthouse-1"}, gotForm)

	a.Header = nil
	_, err = a.Authorize(context.Background(), "1.2", "private-lighthouse-1")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSecretAuthorizerPresence(t *testing.T) {
	a := &SecretAuthorizer{Key: "k", Secret: "s", PresenceData: `{"user_id":"7"}`}
	auth, err := a.Authorize(context.Background(), "1.2", "presence-room")
	require.NoError(t, err)
	require.Equal(t, `{"user_id":"7"}`, auth.ChannelData)
	require.Equal(t, "k:"+Sign("s", `1.2:presence-room:{"user_id":"7"}`), auth.Auth)

	_, err = (&SecretAuthorizer{}).Authorize(context.Background(), "1.2", "private-x")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSign(t *testing.T) {
	// reference value from the Pusher authentication docs
	require.Equal(t,
		"58df8b0c36d6982b82c3ecf6b4662e34fe8c25bba48f5369f135bf843651c3a4",
		Sign("7ad3773142a6692b25b8", "1234.1234:private-foobar"))
}
