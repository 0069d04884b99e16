package notification_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/notification"
)

func TestEmailSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := notification.NewEmailSender(srv.URL, "sg-key", "no-reply@bankroll.test", time.Second)
	err := sender.Send(context.Background(), notification.Message{
		To:      "bob@example.com",
		Subject: "Hello",
		Body:    "Welcome",
		EventID: "evt-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", got["subject"])
	personalizations := got["personalizations"].([]any)
	require.Len(t, personalizations, 1)
	to := personalizations[0].(map[string]any)["to"].([]any)
	assert.Equal(t, "bob@example.com", to[0].(map[string]any)["email"])
}

func TestEmailSenderProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := notification.NewEmailSender(srv.URL, "k", "from@bankroll.test", time.Second)
	err := sender.Send(context.Background(), notification.Message{To: "bob@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSMSSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "+15559990000", r.PostForm.Get("From"))
		assert.Equal(t, "Invite: join us", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := notification.NewSMSSender(srv.URL, "AC123", "secret", "+15559990000", time.Second)
	err := sender.Send(context.Background(), notification.Message{To: "+15550001111", Subject: "Invite", Body: "join us"})
	require.NoError(t, err)
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := notification.NewWebhookSender(srv.URL+"/push", time.Second)
	err := sender.Send(context.Background(), notification.Message{To: "42", Subject: "New member", Body: "bob joined", EventID: "evt-9"})
	require.NoError(t, err)
	assert.Equal(t, "42", got["to"])
	assert.Equal(t, "evt-9", got["event_id"])
}
