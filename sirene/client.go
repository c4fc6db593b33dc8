// Package sirene talks to the INSEE Sirene establishment API: token exchange,
// cursor pagination with rate limit handling and headquarters lookups.
package sirene

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	FirstCursor     = "*"
	DefaultPageSize = 1000

	serverErrorDelay = 60 * time.Second
	maxServerRetries = 10

	endpointSiret  = "siret"
	endpointStatus = "informations"
)

// Observer is notified of every API answer and every backoff sleep.
type Observer interface {
	ObserveResponse(endpoint string, status int)
	ObserveBackoff(reason string, wait time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveResponse(string, int)         {}
func (noopObserver) ObserveBackoff(string, time.Duration) {}

// Searcher is the part of Client used by pagination and headquarters lookups.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*Page, error)
}

type ClientConfig struct {
	HTTPClient *http.Client
	SearchURL  string
	StatusURL  string
	Token      string
	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int
	Observer          Observer

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

type Client struct {
	httpClient *http.Client
	searchURL  string
	statusURL  string
	token      string
	limiter    *rate.Limiter
	observer   Observer
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

var _ Searcher = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	c := Client{
		httpClient: cfg.HTTPClient,
		searchURL:  cfg.SearchURL,
		statusURL:  cfg.StatusURL,
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		observer:   cfg.Observer,
		now:        cfg.Now,
		sleep:      cfg.Sleep,
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	if c.observer == nil {
		c.observer = noopObserver{}
	}

	if c.now == nil {
		c.now = time.Now
	}

	if c.sleep == nil {
		c.sleep = sleepContext
	}

	return &c
}

// SearchRequest holds the parameters of one establishment query.
type SearchRequest struct {
	Query  string
	Fields []string
	Count  int
	Cursor string
	// Date is the reference date (AAAA-MM-JJ) of historized values.
	Date string
	// Method is http.MethodGet (default) or http.MethodPost.
	Method   string
	Compress bool
}

func (r SearchRequest) values() url.Values {
	v := url.Values{}

	if r.Query != "" {
		v.Set("q", r.Query)
	}

	if len(r.Fields) > 0 {
		v.Set("champs", strings.Join(r.Fields, ","))
	}

	if r.Count > 0 {
		v.Set("nombre", strconv.Itoa(r.Count))
	}

	if r.Cursor != "" {
		v.Set("curseur", r.Cursor)
	}

	if r.Date != "" {
		v.Set("date", r.Date)
	}

	return v
}

// ValidateDate checks the AAAA-MM-JJ format expected by the API.
func ValidateDate(value string) error {
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}

	return nil
}

// RateLimitWait is how long to wait after a 429: until the next wall clock
// minute, plus one second.
func RateLimitWait(now time.Time) time.Duration {
	return time.Duration(60-now.Second()+1) * time.Second
}

// Search issues one establishment query. 429 answers are retried until they
// succeed, 500 answers up to 10 times; every other non 200 status is returned
// as an *APIError.
func (c *Client) Search(ctx context.Context, sr SearchRequest) (*Page, error) {
	if sr.Date != "" {
		if err := ValidateDate(sr.Date); err != nil {
			return nil, err
		}
	}

	params := sr.values()

	build := func() (*http.Request, error) {
		var (
			req *http.Request
			err error
		)

		if sr.Method == http.MethodPost {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, strings.NewReader(params.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, withQuery(c.searchURL, params), nil)
		}

		if err != nil {
			return nil, err
		}

		if sr.Compress {
			req.Header.Set("Accept-Encoding", "gzip")
		}

		return req, nil
	}

	status, body, err := c.do(ctx, endpointSiret, true, build)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, newAPIError(endpointSiret, status, headerMessage(body))
	}

	return decodePage(body)
}

func (c *Client) do(ctx context.Context, endpoint string, retryServerErrors bool, build func() (*http.Request, error)) (int, []byte, error) {
	log := zerolog.Ctx(ctx)

	serverErrors := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}

		req, err := build()
		if err != nil {
			return 0, nil, fmt.Errorf("error creating %s request: %w", endpoint, err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("error executing %s request: %w", endpoint, err)
		}

		body, err := readBody(resp)
		resp.Body.Close()

		if err != nil {
			return 0, nil, fmt.Errorf("error reading %s response: %w", endpoint, err)
		}

		c.observer.ObserveResponse(endpoint, resp.StatusCode)

		log.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Interface("headers", resp.Header).
			Int("bytes", len(body)).
			Msg("api response")

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := RateLimitWait(c.now())

			log.Warn().Str("endpoint", endpoint).Dur("wait", wait).Msg("too many requests, waiting for the next minute")
			c.observer.ObserveBackoff("rate_limited", wait)

			if err := c.sleep(ctx, wait); err != nil {
				return 0, nil, err
			}
		case resp.StatusCode == http.StatusInternalServerError && retryServerErrors && serverErrors < maxServerRetries:
			serverErrors++

			log.Warn().Str("endpoint", endpoint).Int("attempt", serverErrors).Msg("internal server error, retrying in 60s")
			c.observer.ObserveBackoff("server_error", serverErrorDelay)

			if err := c.sleep(ctx, serverErrorDelay); err != nil {
				return 0, nil, err
			}
		default:
			return resp.StatusCode, body, nil
		}
	}
}

func withQuery(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}

	return endpoint + sep + params.Encode()
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error creating gzip reader: %w", err)
		}
		defer gz.Close()

		r = gz
	}

	return io.ReadAll(r)
}

type pageHeader struct {
	Total      *int    `json:"total"`
	Cursor     *string `json:"curseur"`
	NextCursor *string `json:"curseurSuivant"`
	Message    string  `json:"message"`
}

type pageBody struct {
	Header         *pageHeader      `json:"header"`
	Establishments *[]Establishment `json:"etablissements"`
}

func decodePage(body []byte) (*Page, error) {
	var data pageBody
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding siret response: %w", err)
	}

	switch {
	case data.Header == nil:
		return nil, &MalformedResponseError{Key: "header"}
	case data.Header.Cursor == nil:
		return nil, &MalformedResponseError{Key: "header.curseur"}
	case data.Header.NextCursor == nil:
		return nil, &MalformedResponseError{Key: "header.curseurSuivant"}
	case data.Establishments == nil:
		return nil, &MalformedResponseError{Key: "etablissements"}
	}

	page := Page{
		Records:    *data.Establishments,
		Cursor:     *data.Header.Cursor,
		NextCursor: *data.Header.NextCursor,
	}

	if data.Header.Total != nil {
		page.Total = *data.Header.Total
	}

	return &page, nil
}

func headerMessage(body []byte) string {
	var data pageBody
	if err := json.Unmarshal(body, &data); err != nil || data.Header == nil {
		return ""
	}

	return data.Header.Message
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
