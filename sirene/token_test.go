package sirene

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":604800}`))
	}))
	defer srv.Close()

	token, err := AcquireToken(context.Background(), srv.Client(), srv.URL, Credentials{ConsumerKey: "key", ConsumerSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestAcquireTokenErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		expected    error
		description string
	}{
		{"invalid credentials", http.StatusUnauthorized, "application/json", `{"error":"invalid_client","error_description":"Client Authentication failed."}`, ErrInvalidCredentials, "Client Authentication failed."},
		{"server error", http.StatusInternalServerError, "application/json", `{}`, ErrTokenService, ""},
		{"not json", http.StatusOK, "text/html", `<html></html>`, ErrTokenService, ""},
		{"missing token", http.StatusOK, "application/json", `{}`, ErrTokenService, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", test.contentType)
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}))
			defer srv.Close()

			_, err := AcquireToken(context.Background(), srv.Client(), srv.URL, Credentials{})
			require.Error(t, err)
			assert.ErrorIs(t, err, test.expected)

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, test.status, authErr.StatusCode)
			assert.Equal(t, test.description, authErr.Description)
		})
	}
}

func TestNewHTTPClientProxyByScheme(t *testing.T) {
	client, err := NewHTTPClient(ProxyConfig{HTTP: "http://proxy:3128", HTTPS: "http://secure-proxy:3128"})
	require.NoError(t, err)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)

	req, _ := http.NewRequest(http.MethodGet, "https://api.insee.fr/api-sirene/3.11/siret", nil)
	u, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "secure-proxy:3128", u.Host)

	req, _ = http.NewRequest(http.MethodGet, "http://api.insee.fr/", nil)
	u, err = transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy:3128", u.Host)

	_, err = NewHTTPClient(ProxyConfig{HTTP: "://bad"})
	assert.Error(t, err)
}
