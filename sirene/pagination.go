package sirene

import (
	"context"
	"fmt"
)

// Paginate runs req from the first cursor and calls visit with every page.
// It stops when the server no longer advances the cursor. A cursor seen twice
// means the server is cycling and ErrCursorLoop is returned.
func Paginate(ctx context.Context, s Searcher, req SearchRequest, visit func(*Page) error) error {
	seen := make(map[string]struct{})

	req.Cursor = FirstCursor

	for {
		if _, ok := seen[req.Cursor]; ok {
			return fmt.Errorf("%w: cursor %q already visited", ErrCursorLoop, req.Cursor)
		}

		seen[req.Cursor] = struct{}{}

		page, err := s.Search(ctx, req)
		if err != nil {
			return err
		}

		if err := visit(page); err != nil {
			return err
		}

		if page.Done() || page.NextCursor == req.Cursor {
			return nil
		}

		req.Cursor = page.NextCursor
	}
}
