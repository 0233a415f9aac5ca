package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var csvHeader = []string{"id", "name", "type", "parent_ids"}

// CSVProvider reads entries from a catalog export with the columns
// id,name,type,parent_ids where parent_ids looks like "[1,2,3]".
type CSVProvider struct {
	Path string
}

func (p CSVProvider) Entries(_ context.Context) ([]Entry, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a catalog export.
func ReadCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog csv is empty")
		}
		return nil, fmt.Errorf("read catalog csv header: %w", err)
	}
	if !strings.EqualFold(strings.Join(header, ","), strings.Join(csvHeader, ",")) {
		return nil, fmt.Errorf("unexpected catalog csv header %q", strings.Join(header, ","))
	}

	var entries []Entry
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog csv line %d: %w", line, err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("catalog csv line %d: invalid id %q", line, row[0])
		}
		ancestors, err := parseIDList(row[3])
		if err != nil {
			return nil, fmt.Errorf("catalog csv line %d: %w", line, err)
		}
		entries = append(entries, Entry{
			ID:          id,
			Name:        row[1],
			Kind:        ParseKind(row[2]),
			AncestorIDs: ancestors,
		})
	}
	return entries, nil
}

// WriteCSV writes entries in the format ReadCSV accepts.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write catalog csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{strconv.Itoa(e.ID), e.Name, string(e.Kind), formatIDList(e.AncestorIDs)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write catalog entry %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseIDList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatIDList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
