package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Webhook posts the archive-ready message to a completion URL.
type Webhook struct {
	completionURL string
	httpClient    *http.Client
}

// NewWebhook creates a Webhook for url. An empty url disables the call.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		completionURL: url,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) ArchiveReady(ctx context.Context, msg Message) error {
	log := zerolog.Ctx(ctx)

	if w.completionURL == "" {
		log.Info().Str("run_id", msg.RunID).Msg("skipping completion call: no completion url")

		return nil
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.completionURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	log.Info().Str("url", w.completionURL).Msg("calling completion url")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("completion call failed: %w", err)
	}

	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("completion call failed: unexpected status %d", resp.StatusCode)
	}

	log.Info().Int("status", resp.StatusCode).Msg("completion call successful")

	return nil
}

// URL returns the completion URL.
func (w *Webhook) URL() string {
	return w.completionURL
}
