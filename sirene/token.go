package sirene

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Credentials are the consumer key/secret pair of the API application.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ErrorDescription string `json:"error_description"`
}

// AcquireToken performs a single client_credentials exchange and returns the
// bearer token. It never retries.
func AcquireToken(ctx context.Context, client *http.Client, endpoint string, creds Credentials) (string, error) {
	log := zerolog.Ctx(ctx)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating token request: %w", err)
	}

	req.SetBasicAuth(creds.ConsumerKey, creds.ConsumerSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error executing token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading token response: %w", err)
	}

	log.Debug().Int("status", resp.StatusCode).Interface("headers", resp.Header).Str("body", string(body)).Msg("token response")

	if !isJSON(resp.Header.Get("Content-Type")) {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: ErrTokenService}
	}

	var data tokenResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Description: err.Error(), Err: ErrTokenService}
	}

	switch {
	case resp.StatusCode == http.StatusOK && data.AccessToken != "":
		return data.AccessToken, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return "", &AuthError{StatusCode: resp.StatusCode, Description: data.ErrorDescription, Err: ErrInvalidCredentials}
	default:
		return "", &AuthError{StatusCode: resp.StatusCode, Description: data.ErrorDescription, Err: ErrTokenService}
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json"
}
