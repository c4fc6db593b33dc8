package sirene

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

type CollectionUpdate struct {
	Collection                   string `json:"collection"`
	DateDerniereMiseADisposition string `json:"dateDerniereMiseADisposition"`
	DateDernierTraitementDeMasse string `json:"dateDernierTraitementDeMasse"`
	DateDernierTraitementMaximum string `json:"dateDernierTraitementMaximum"`
}

// ServiceStatus is the document returned by the informations endpoint.
type ServiceStatus struct {
	VersionService string             `json:"versionService"`
	Updates        []CollectionUpdate `json:"datesDernieresMisesAJourDesDonnees"`
}

// Status fetches the service status. 429 answers are retried, server errors
// are not.
func (c *Client) Status(ctx context.Context) (*ServiceStatus, error) {
	build := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	}

	status, body, err := c.do(ctx, endpointStatus, false, build)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, newAPIError(endpointStatus, status, "")
	}

	var s ServiceStatus
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("error decoding status response: %w", err)
	}

	return &s, nil
}

// Log writes the service version and one line per collection.
func (s *ServiceStatus) Log(ctx context.Context, level zerolog.Level) {
	log := zerolog.Ctx(ctx)

	log.WithLevel(level).Str("versionService", s.VersionService).Msg("sirene service status")

	for _, u := range s.Updates {
		log.WithLevel(level).
			Str("collection", u.Collection).
			Str("dateDerniereMiseADisposition", u.DateDerniereMiseADisposition).
			Str("dateDernierTraitementDeMasse", u.DateDernierTraitementDeMasse).
			Str("dateDernierTraitementMaximum", u.DateDernierTraitementMaximum).
			Msg("collection update")
	}
}
