package bronze

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Sources locates the producer outputs.
type Sources struct {
	Events       string
	Users        string
	IPReputation string
}

// LoadResult reports what a load wrote.
type LoadResult struct {
	Events       int
	Users        int
	IPReputation int
	Duration     time.Duration
}

// Loader replaces the Bronze tables from the producer outputs.
type Loader struct {
	store   warehouse.Store
	sources Sources
}

// NewLoader creates a Loader.
func NewLoader(store warehouse.Store, sources Sources) *Loader {
	return &Loader{store: store, sources: sources}
}

// Load reads every source and replaces all three Bronze tables in one
// atomic Replace. The events file is required; a missing dimension file
// loads an empty dimension, since unmatched joins are valid.
func (l *Loader) Load(ctx context.Context) (LoadResult, error) {
	start := time.Now()
	log := logging.ComponentContext(ctx, "bronze")

	events, err := readFile(l.sources.Events, ReadEventsCSV)
	if err != nil {
		return LoadResult{}, errors.NewStageError(schema.LayerBronze, schema.BronzeEvents.Name, err)
	}

	users, found, err := readOptional(l.sources.Users, ReadUsers)
	if err != nil {
		return LoadResult{}, errors.NewStageError(schema.LayerBronze, schema.BronzeUsers.Name, err)
	}
	if !found {
		log.Warn("users source missing, loading empty dimension", "path", l.sources.Users)
	}

	ips, found, err := readOptional(l.sources.IPReputation, ReadIPReputation)
	if err != nil {
		return LoadResult{}, errors.NewStageError(schema.LayerBronze, schema.BronzeIPReputation.Name, err)
	}
	if !found {
		log.Warn("ip reputation source missing, loading empty dimension", "path", l.sources.IPReputation)
	}

	err = l.store.Replace(ctx,
		warehouse.NewBatch(schema.BronzeEvents, events),
		warehouse.NewBatch(schema.BronzeUsers, users),
		warehouse.NewBatch(schema.BronzeIPReputation, ips),
	)
	if err != nil {
		return LoadResult{}, errors.NewStageError(schema.LayerBronze, "", err)
	}

	res := LoadResult{
		Events:       len(events),
		Users:        len(users),
		IPReputation: len(ips),
		Duration:     time.Since(start),
	}
	log.Info("bronze loaded",
		"events", res.Events,
		"users", res.Users,
		"ip_reputation", res.IPReputation,
		"duration", res.Duration,
	)
	return res, nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, errors.ErrSourceNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// readOptional is readFile that reports a missing file as found=false.
func readOptional[T any](path string, read func(io.Reader) ([]T, error)) ([]T, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	rows, err := readFile(path, read)
	if errors.Is(err, errors.ErrSourceNotFound) {
		return nil, false, nil
	}
	return rows, err == nil, err
}

// =============================================================================
// Reading Bronze back
// =============================================================================

// Snapshot is the full Bronze content read from the warehouse.
type Snapshot struct {
	Events       []Event
	Users        []User
	IPReputation []IPReputation
}

// Read loads all three Bronze tables, each in load order. Every table's
// columns are checked against its contract first.
func Read(ctx context.Context, store warehouse.Store) (*Snapshot, error) {
	for _, t := range schema.Bronze() {
		cols, err := store.Columns(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", t.Name, err)
		}
		if err := schema.RequireTable(t, cols); err != nil {
			return nil, err
		}
	}

	snap := &Snapshot{}

	err := store.Select(ctx, schema.BronzeEvents, func(row warehouse.Scanner) error {
		e, err := ScanEvent(row)
		if err != nil {
			return err
		}
		snap.Events = append(snap.Events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = store.Select(ctx, schema.BronzeUsers, func(row warehouse.Scanner) error {
		u, err := ScanUser(row)
		if err != nil {
			return err
		}
		snap.Users = append(snap.Users, u)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = store.Select(ctx, schema.BronzeIPReputation, func(row warehouse.Scanner) error {
		r, err := ScanIPReputation(row)
		if err != nil {
			return err
		}
		snap.IPReputation = append(snap.IPReputation, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}
