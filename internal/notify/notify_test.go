package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/arpm/internal/config"
)

func TestWebhookPostsEvent(t *testing.T) {
	var got Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := Webhook{Name: "ci", URL: srv.URL, Headers: map[string]string{"X-Token": "s3cret"}}
	err := hook.Notify(context.Background(), Event{Type: "deploy", Status: "success", Destination: "4vrtiny", Files: 12})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", header)
	assert.Equal(t, "4vrtiny", got.Destination)
	assert.Equal(t, 12, got.Files)
}

func TestMattermostText(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	err := Mattermost{Name: "team", URL: srv.URL}.Notify(context.Background(), Event{Status: "failed", Message: "deploy 4vrtiny", Error: "exit status 2"})
	require.NoError(t, err)
	assert.Equal(t, "[failed] deploy 4vrtiny: exit status 2", payload["text"])
}

func TestMatrixUsesBearerToken(t *testing.T) {
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
	}))
	defer srv.Close()

	m := Matrix{Name: "ops", ServerURL: srv.URL + "/", AccessToken: "tok", RoomID: "!room:example.org"}
	require.NoError(t, m.Notify(context.Background(), Event{Status: "success", Message: "deploy site"}))
	assert.Equal(t, "Bearer tok", auth)
	assert.True(t, strings.HasPrefix(path, "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/"), path)
}

func TestMultiJoinsErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	calls := 0
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ok.Close()

	multi := FromConfig(config.NotificationsConfig{
		Webhooks:   []config.WebhookConfig{{Name: "bad", URL: failing.URL}, {Name: "good", URL: ok.URL}},
		Mattermost: []config.MattermostHook{{Name: "mm", URL: ok.URL}},
	})
	require.Len(t, multi.Targets, 3)

	err := multi.Notify(context.Background(), Event{Status: "success"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook bad returned")
	assert.Equal(t, 2, calls)
}
