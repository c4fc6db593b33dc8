package postgres

import (
	"fmt"
	"strings"
)

const createRowsTable = `CREATE TABLE IF NOT EXISTS sirene_rows (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL,
	schema_name TEXT NOT NULL,
	siret TEXT NOT NULL,
	target_date DATE NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createRowsIndex = `CREATE INDEX IF NOT EXISTS sirene_rows_siret_idx ON sirene_rows (siret, target_date)`

// rowColumns are the columns set by InsertRowsQuery, in placeholder order.
var rowColumns = []string{"run_id", "schema_name", "siret", "target_date", "payload", "created_at"}

// InsertRowsQuery builds one multi-row insert into sirene_rows.
type InsertRowsQuery struct {
	entries []dbEntry
}

// NewInsertRowsQuery creates a new InsertRowsQuery builder.
func NewInsertRowsQuery(entries []dbEntry) *InsertRowsQuery {
	return &InsertRowsQuery{entries: entries}
}

// Build returns the SQL query string and arguments. ok is false when there
// is nothing to insert.
func (q *InsertRowsQuery) Build() (string, []interface{}, bool) {
	if len(q.entries) == 0 {
		return "", nil, false
	}

	n := len(rowColumns)

	elements := make([]string, 0, len(q.entries))
	args := make([]interface{}, 0, len(q.entries)*n)

	for i, item := range q.entries {
		placeholders := make([]string, n)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*n+j+1)
		}

		elements = append(elements, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, item.RunID, item.Schema, item.Siret, item.TargetDate, item.Payload, item.CreatedAt)
	}

	query := "INSERT INTO sirene_rows\n\t\t(" + strings.Join(rowColumns, ", ") + ")\n\t\tVALUES\n\t\t" +
		strings.Join(elements, ", ")

	return query, args, true
}
