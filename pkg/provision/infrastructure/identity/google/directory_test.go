package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *DirectoryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewDirectoryClientWithOptions(context.Background(), "/Sales",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestCreateAccount_SendsUserAndReturnsID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/directory/v1/users", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "jane@example.com", body["primaryEmail"])
		assert.Equal(t, "/Sales", body["orgUnitPath"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"104","primaryEmail":"jane@example.com"}`))
	})

	user, err := c.CreateAccount(context.Background(), port.CreateAccountRequest{
		Domain: "example.com", LocalPart: "jane", FirstName: "Jane", LastName: "Doe", Password: "Str0ng!Password",
	})

	require.NoError(t, err)
	assert.Equal(t, "104", user.ExternalID)
}

func TestCreateAccount_ConflictKeepsProviderWording(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":409,"message":"Entity already exists.","errors":[{"reason":"duplicate","message":"Entity already exists."}]}}`))
	})

	_, err := c.CreateAccount(context.Background(), port.CreateAccountRequest{Domain: "example.com", LocalPart: "jane"})

	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 409, perr.StatusCode())
	assert.Equal(t, exception.KindUserAlreadyExists, exception.Classify(err).Kind)
}

func TestGetAccountStatus_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Resource Not Found: userKey"}}`))
	})

	_, err := c.GetAccountStatus(context.Background(), "ghost@example.com")

	assert.Equal(t, exception.KindAccountNotFound, exception.Classify(err).Kind)
}

func TestGetAccountStatus_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"Backend Error"}}`))
	})

	_, err := c.GetAccountStatus(context.Background(), "jane@example.com")

	be := exception.Classify(err)
	assert.Equal(t, exception.KindAPI, be.Kind)
	assert.True(t, be.IsRetryable())
}
