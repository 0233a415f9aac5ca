// Package records reads the stored permalinks to convert.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Sudo-Ivan/permalink-converter/pkg/sqlstore"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// ErrNotFound is returned by Get when no record has the requested ref.
var ErrNotFound = errors.New("record not found")

// Source supplies records to convert.
type Source interface {
	Get(ctx context.Context, ref string) (state.Record, error)
	All(ctx context.Context) ([]state.Record, error)
}

// SQLSource reads the shorturl table of the static schema. Driver selects the bind
// parameter syntax and defaults to Postgres.
type SQLSource struct {
	DB     *sql.DB
	Schema string
	Driver string
}

var _ Source = SQLSource{}

func (s SQLSource) table() (string, error) {
	return sqlstore.Table(s.Schema, "shorturl")
}

// Get returns the record with the given ref.
func (s SQLSource) Get(ctx context.Context, ref string) (state.Record, error) {
	table, err := s.table()
	if err != nil {
		return state.Record{}, err
	}
	var rec state.Record
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT ref, url FROM %s WHERE ref = %s`, table, sqlstore.Placeholder(s.Driver, 1)), ref)
	if err := row.Scan(&rec.Ref, &rec.URL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return state.Record{}, fmt.Errorf("select record %s: %w", ref, err)
	}
	return rec, nil
}

// All returns every record ordered by ref.
func (s SQLSource) All(ctx context.Context) ([]state.Record, error) {
	table, err := s.table()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`SELECT ref, url FROM %s ORDER BY ref`, table))
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var out []state.Record
	for rows.Next() {
		var rec state.Record
		if err := rows.Scan(&rec.Ref, &rec.URL); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// JSONSource serves records from a JSON array of {ref, url, expected} objects. It is
// used for test runs, where expected holds the URL the conversion should produce.
type JSONSource struct {
	records []state.Record
}

var _ Source = (*JSONSource)(nil)

// LoadJSON reads a record file.
func LoadJSON(path string) (*JSONSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	var recs []state.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode records file %s: %w", path, err)
	}
	return &JSONSource{records: recs}, nil
}

// NewJSONSource serves the given records.
func NewJSONSource(recs []state.Record) *JSONSource {
	return &JSONSource{records: recs}
}

func (s *JSONSource) Get(_ context.Context, ref string) (state.Record, error) {
	for _, r := range s.records {
		if r.Ref == ref {
			return r, nil
		}
	}
	return state.Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

func (s *JSONSource) All(_ context.Context) ([]state.Record, error) {
	return append([]state.Record(nil), s.records...), nil
}
