package export

import "fmt"

// ArchiveError is a filesystem or compression failure on the export files.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("error during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}
