package graphstore

import "context"

// Record is one flattened result row keyed by the query's return columns.
type Record map[string]any

// RecordSet is the collected result of a single query.
type RecordSet struct {
	Records []Record
}

// Count returns the number of rows in the set.
func (rs *RecordSet) Count() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// Statement pairs a query with its bind parameters for transactional
// execution.
type Statement struct {
	Query  string
	Params map[string]any
}

// Writer executes write-capable statements against the store.
type Writer interface {
	Run(ctx context.Context, query string, params map[string]any) (*RecordSet, error)
	RunTransaction(ctx context.Context, statements []Statement) error
}

// Reader executes read-only queries. Read sessions are opened with read
// access mode so a clustered store refuses writes server-side even if a
// mutating statement slipped past validation.
type Reader interface {
	RunRead(ctx context.Context, query string, params map[string]any) (*RecordSet, error)
}
