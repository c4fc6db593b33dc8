package sirene

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	pages    map[string]*Page
	requests []SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req SearchRequest) (*Page, error) {
	f.requests = append(f.requests, req)

	page, ok := f.pages[req.Cursor]
	if !ok {
		return nil, errors.New("unexpected cursor " + req.Cursor)
	}

	return page, nil
}

func records(sirets ...string) []Establishment {
	out := make([]Establishment, 0, len(sirets))
	for _, s := range sirets {
		out = append(out, Establishment{"siret": s})
	}

	return out
}

func TestPaginateVisitsEveryPageOnce(t *testing.T) {
	s := &fakeSearcher{pages: map[string]*Page{
		"*":  {Cursor: "*", NextCursor: "c1", Records: records("1", "2")},
		"c1": {Cursor: "c1", NextCursor: "c2", Records: records("3")},
		"c2": {Cursor: "c2", NextCursor: "c2", Records: records("4", "5")},
	}}

	var got []string

	err := Paginate(context.Background(), s, SearchRequest{Query: "q", Count: 2}, func(p *Page) error {
		for _, r := range p.Records {
			got = append(got, r.Siret())
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, got)
	require.Len(t, s.requests, 3)
	assert.Equal(t, "*", s.requests[0].Cursor)
	assert.Equal(t, "c2", s.requests[2].Cursor)

	for _, r := range s.requests {
		assert.Equal(t, "q", r.Query)
		assert.Equal(t, 2, r.Count)
	}
}

func TestPaginateSinglePage(t *testing.T) {
	s := &fakeSearcher{pages: map[string]*Page{
		"*": {Cursor: "*", NextCursor: "*", Records: records("1")},
	}}

	pages := 0

	err := Paginate(context.Background(), s, SearchRequest{}, func(*Page) error {
		pages++

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestPaginateDetectsCursorLoop(t *testing.T) {
	s := &fakeSearcher{pages: map[string]*Page{
		"*":  {Cursor: "*", NextCursor: "c1"},
		"c1": {Cursor: "c1", NextCursor: "c2"},
		"c2": {Cursor: "c2", NextCursor: "c1"},
	}}

	err := Paginate(context.Background(), s, SearchRequest{}, func(*Page) error { return nil })
	assert.ErrorIs(t, err, ErrCursorLoop)
	assert.Len(t, s.requests, 3)
}

func TestPaginateStopsOnVisitError(t *testing.T) {
	s := &fakeSearcher{pages: map[string]*Page{
		"*": {Cursor: "*", NextCursor: "c1"},
	}}

	boom := errors.New("boom")

	err := Paginate(context.Background(), s, SearchRequest{}, func(*Page) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.requests, 1)
}
