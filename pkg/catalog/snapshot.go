package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion guards against reading snapshots written by an incompatible build.
const snapshotVersion = 1

type snapshot struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// SnapshotProvider reads entries from a msgpack snapshot written by WriteSnapshot.
type SnapshotProvider struct {
	Path string
}

func (p SnapshotProvider) Entries(_ context.Context) ([]Entry, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot decodes a catalog snapshot.
func ReadSnapshot(r io.Reader) ([]Entry, error) {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode catalog snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported catalog snapshot version %d", snap.Version)
	}
	return snap.Entries, nil
}

// WriteSnapshot encodes entries as a msgpack snapshot.
func WriteSnapshot(w io.Writer, entries []Entry) error {
	if err := msgpack.NewEncoder(w).Encode(snapshot{Version: snapshotVersion, Entries: entries}); err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	return nil
}
