package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "test-key", 0, 1, 5*time.Second)
}

func TestConnect(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/mailboxes", r.URL.Path)
		var req connectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jane@example.com", req.Email)
		assert.Equal(t, 587, req.SMTP.Port)
		assert.Equal(t, 20, req.Warmup.DailyLimit)
		_, _ = w.Write([]byte(`{"id":"w-1","warmup_key":"wk","warmup":{"enabled":true,"daily_limit":20}}`))
	})

	reg, err := c.Connect(context.Background(), port.WarmupMailbox{
		Email:    "jane@example.com",
		SMTP:     port.MailServerLogin{Host: "smtp.gmail.com", Port: 587},
		Settings: model.DefaultWarmupSettings(),
	})

	require.NoError(t, err)
	assert.Equal(t, "w-1", reg.ExternalID)
	assert.Equal(t, "wk", reg.WarmupKey)
	assert.True(t, reg.Settings.Enabled)
}

func TestErrorStatusesClassify(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		kind      exception.ErrorKind
		retryable bool
	}{
		{http.StatusConflict, `{"error":"duplicate"}`, exception.KindAlreadyConnected, false},
		{http.StatusTooManyRequests, `{}`, exception.KindRateLimit, true},
		{http.StatusUnauthorized, `{"message":"bad key"}`, exception.KindAPIAuthentication, false},
		{http.StatusBadGateway, ``, exception.KindAPI, true},
		{http.StatusUnprocessableEntity, `{"error":"smtp login rejected: invalid credentials"}`, exception.KindInvalidCredentials, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.Disconnect(context.Background(), "w-1")

			require.Error(t, err)
			be := exception.Classify(err)
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.retryable, be.IsRetryable())
		})
	}
}

func TestCampaigns(t *testing.T) {
	removed := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/campaigns":
			_, _ = w.Write([]byte(`{"campaigns":[{"id":"c1","name":"Q3","account_ids":["w-1"]}]}`))
		case r.Method == http.MethodDelete:
			removed <- r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	campaigns, err := c.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, []string{"w-1"}, campaigns[0].AccountIDs)

	require.NoError(t, c.RemoveFromCampaign(context.Background(), "c1", "w-1"))
	assert.Equal(t, "/v1/campaigns/c1/accounts/w-1", <-removed)
}

func TestUpdateSettings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var patch map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, map[string]interface{}{"daily_limit": float64(40)}, patch)
		_, _ = w.Write([]byte(`{"enabled":true,"daily_limit":40}`))
	})

	limit := 40
	s, err := c.UpdateSettings(context.Background(), "w-1", model.WarmupSettingsPatch{DailyLimit: &limit})

	require.NoError(t, err)
	assert.Equal(t, 40, s.DailyLimit)
}

func TestOversizedResponseIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"enabled":true,"tag":"`))
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBytes)))
		_, _ = w.Write([]byte(`"}`))
	})

	limit := 40
	_, err := c.UpdateSettings(context.Background(), "w-1", model.WarmupSettingsPatch{DailyLimit: &limit})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestCancelledContextStopsBeforeRequest(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	c.limiter.SetLimit(0.001)
	c.limiter.SetBurst(1)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListCampaigns(ctx)

	require.Error(t, err)
	assert.False(t, called)
}
