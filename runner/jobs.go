package runner

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Tpgainz/sirene-export/sirene"
)

// Job is one extraction: a mode and its target date (AAAA-MM-JJ, empty for
// the mode default).
type Job struct {
	Mode int
	Date string
}

// TargetDate resolves the date of the job. Updates default to yesterday,
// prospects to today.
func (j Job) TargetDate(now time.Time) string {
	if j.Date != "" {
		return j.Date
	}

	if j.Mode == RunModeUpdates {
		return now.AddDate(0, 0, -1).Format(time.DateOnly)
	}

	return now.Format(time.DateOnly)
}

// Validate rejects a malformed date before any request is sent.
func (j Job) Validate() error {
	switch j.Mode {
	case RunModeUpdates, RunModeProspects, RunModeStatus:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRunMode, j.Mode)
	}

	if j.Date == "" {
		return nil
	}

	return sirene.ValidateDate(j.Date)
}

// UpdatesRequest selects the establishments processed on date.
func UpdatesRequest(date string, pageSize int) sirene.SearchRequest {
	return sirene.SearchRequest{
		Query:    sirene.UpdatesQuery(date),
		Count:    pageSize,
		Compress: true,
	}
}

// ProspectsRequest selects the active establishments of the NAF codes, as
// known on date. The query is sent in the body: long NAF lists do not fit in
// a URL.
func ProspectsRequest(nafCodes []string, date string, pageSize int) sirene.SearchRequest {
	return sirene.SearchRequest{
		Query:    sirene.ProspectsQuery(nafCodes),
		Count:    pageSize,
		Date:     date,
		Method:   http.MethodPost,
		Compress: true,
	}
}
