package sirene

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// MaxKeysPerQuery is the largest number of sirets the API accepts in one OR
// query before answering 414.
const MaxKeysPerQuery = 85

// Resolver fetches headquarters records in bulk.
type Resolver struct {
	searcher  Searcher
	chunkSize int
}

func NewResolver(s Searcher) *Resolver {
	return &Resolver{
		searcher:  s,
		chunkSize: MaxKeysPerQuery,
	}
}

// HeadquartersKeys returns the distinct headquarters keys referenced by the
// non headquarters establishments of records, in first seen order.
func HeadquartersKeys(records []Establishment) []string {
	seen := make(map[string]struct{})

	var keys []string

	for _, e := range records {
		if e.IsHeadquarters() {
			continue
		}

		key := e.HeadquartersKey()
		if key == "" {
			continue
		}

		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys
}

// Resolve queries keys by chunks and indexes the returned records by siret.
// A chunk rejected by the API is logged and skipped, so callers must expect
// missing keys. Transport and decoding failures abort.
func (r *Resolver) Resolve(ctx context.Context, keys []string) (Index, error) {
	log := zerolog.Ctx(ctx)

	keys = uniqueKeys(keys)
	index := make(Index, len(keys))

	for i, chunk := range chunkKeys(keys, r.chunkSize) {
		page, err := r.searcher.Search(ctx, SearchRequest{
			Query:    SiretQuery(chunk),
			Fields:   HeadquartersFields,
			Count:    r.chunkSize,
			Compress: true,
		})

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			log.Warn().Err(err).Int("chunk", i).Int("keys", len(chunk)).Msg("skipping headquarters chunk")

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("error retrieving headquarters: %w", err)
		}

		for _, e := range page.Records {
			siret := e.Siret()
			if siret == "" {
				return nil, &MalformedResponseError{Key: "etablissements.siret"}
			}

			index[siret] = e
		}
	}

	log.Info().Msgf("retrieved %d of %d headquarters", len(index), len(keys))

	return index, nil
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))

	for _, k := range keys {
		if k == "" {
			continue
		}

		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}

func chunkKeys(keys []string, size int) [][]string {
	var chunks [][]string

	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}

		chunks = append(chunks, keys[i:end])
	}

	return chunks
}
