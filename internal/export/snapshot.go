// Package export writes run snapshots of Silver and Gold as Parquet files.
//
// A snapshot is assembled in a hidden temporary directory and renamed into
// place, so data_dir/runs/<run_id> either holds a complete snapshot with its
// manifest or does not exist.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/fingerprint"
	"github.com/xtxerr/medallion/internal/gold"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/silver"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// ManifestFile is the manifest name inside a run directory.
const ManifestFile = "manifest.json"

// TmpPrefix marks snapshots still being written.
const TmpPrefix = ".tmp-"

// TableEntry describes one exported table.
type TableEntry struct {
	Name  string `json:"name"`
	Layer string `json:"layer"`
	File  string `json:"file"`
	Rows  int64  `json:"rows"`
	Hash  string `json:"hash,omitempty"`
}

// Manifest describes one run snapshot.
type Manifest struct {
	RunID      string       `json:"run_id"`
	Driver     string       `json:"driver"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Tables     []TableEntry `json:"tables"`
}

// Table returns the entry for a qualified table name.
func (m *Manifest) Table(name string) (TableEntry, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableEntry{}, false
}

// Snapshot is the content to export.
type Snapshot struct {
	RunID        string
	Driver       string
	StartedAt    time.Time
	Silver       []silver.Event
	Gold         *gold.Tables
	Fingerprints map[string]fingerprint.Fingerprint
}

// Exporter writes snapshots under a runs directory.
type Exporter struct {
	dir  string
	opts Options
}

// New creates an Exporter rooted at dir.
func New(dir string, opts Options) *Exporter {
	return &Exporter{dir: dir, opts: opts}
}

// Dir returns the runs directory.
func (e *Exporter) Dir() string { return e.dir }

// RunDir returns the directory of a run snapshot.
func (e *Exporter) RunDir(runID string) string {
	return filepath.Join(e.dir, runID)
}

// TablePath returns the relative file path of a table inside a run.
func TablePath(t schema.Table) string {
	return filepath.Join(t.Layer, t.Short()+".parquet")
}

// Export writes the snapshot and its manifest. An existing snapshot with the
// same run ID is an error.
func (e *Exporter) Export(s Snapshot) (*Manifest, error) {
	log := logging.Component("export")
	start := time.Now()

	final := e.RunDir(s.RunID)
	if _, err := os.Stat(final); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists", s.RunID)
	}

	tmp := filepath.Join(e.dir, TmpPrefix+s.RunID)
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("clear temp dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(tmp)
		}
	}()

	g := s.Gold
	if g == nil {
		g = &gold.Tables{}
	}

	m := &Manifest{RunID: s.RunID, Driver: s.Driver, StartedAt: s.StartedAt}
	steps := []struct {
		table schema.Table
		write func(path string) (int64, error)
	}{
		{schema.SilverEvents, func(p string) (int64, error) { return WriteTable(p, s.Silver, e.opts) }},
		{schema.GoldDailyTraffic, func(p string) (int64, error) { return WriteTable(p, g.DailyTraffic, e.opts) }},
		{schema.GoldUserActivity, func(p string) (int64, error) { return WriteTable(p, g.UserActivity, e.opts) }},
		{schema.GoldIPThreat, func(p string) (int64, error) { return WriteTable(p, g.IPThreat, e.opts) }},
		{schema.GoldSecuritySummary, func(p string) (int64, error) { return WriteTable(p, g.SecuritySummary, e.opts) }},
		{schema.GoldHourlyPatterns, func(p string) (int64, error) { return WriteTable(p, g.HourlyPatterns, e.opts) }},
	}

	for _, step := range steps {
		rel := TablePath(step.table)
		n, err := step.write(filepath.Join(tmp, rel))
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", step.table.Name, err)
		}
		m.Tables = append(m.Tables, TableEntry{
			Name:  step.table.Name,
			Layer: step.table.Layer,
			File:  filepath.ToSlash(rel),
			Rows:  n,
			Hash:  s.Fingerprints[step.table.Name].Hash,
		})
	}

	m.FinishedAt = time.Now().UTC()
	if err := writeManifest(filepath.Join(tmp, ManifestFile), m); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}
	ok = true

	log.Info("snapshot exported",
		"run_id", s.RunID,
		"dir", final,
		"tables", len(m.Tables),
		"duration", time.Since(start),
	)
	return m, nil
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of a run directory.
func ReadManifest(runDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ReadRecords reads one exported table of a run directory as column-name
// keyed maps, in the order it was written.
func ReadRecords(runDir string, t schema.Table) ([]map[string]any, error) {
	path := filepath.Join(runDir, TablePath(t))
	switch t.Name {
	case schema.SilverEvents.Name:
		return records(path, t, ReadTable[silver.Event])
	case schema.GoldDailyTraffic.Name:
		return records(path, t, ReadTable[gold.DailyTraffic])
	case schema.GoldUserActivity.Name:
		return records(path, t, ReadTable[gold.UserActivity])
	case schema.GoldIPThreat.Name:
		return records(path, t, ReadTable[gold.IPThreat])
	case schema.GoldSecuritySummary.Name:
		return records(path, t, ReadTable[gold.SecuritySummary])
	case schema.GoldHourlyPatterns.Name:
		return records(path, t, ReadTable[gold.HourlyPattern])
	default:
		return nil, fmt.Errorf("%s is not exported: %w", t.Name, errors.ErrTableNotFound)
	}
}

func records[R warehouse.Row](path string, t schema.Table, read func(string) ([]R, error)) ([]map[string]any, error) {
	rows, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Name, err)
	}
	names := t.ColumnNames()
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		rec := make(map[string]any, len(names))
		for j, v := range r.Values() {
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC()
			}
			rec[names[j]] = v
		}
		out[i] = rec
	}
	return out, nil
}
