// Package schema describes every pipeline table independently of the
// warehouse engine that stores it.
//
// A Table is a qualified name ("silver.logs_enriched"), its layer, an ordered
// list of typed columns and a sort key. Warehouse drivers map each Kind to
// their own dialect; layer packages produce rows whose values follow the
// column order exactly.
package schema

import (
	"fmt"
	"strings"

	"github.com/xtxerr/medallion/internal/errors"
)

// Layer names.
const (
	LayerBronze = "bronze"
	LayerSilver = "silver"
	LayerGold   = "gold"
)

// Kind is the logical type of a column.
type Kind int

const (
	String Kind = iota
	DateTime
	Date
	UInt8
	Int32
	UInt32
	UInt64
	Float32
	Float64
)

var kindNames = [...]string{
	String:   "String",
	DateTime: "DateTime",
	Date:     "Date",
	UInt8:    "UInt8",
	Int32:    "Int32",
	UInt32:   "UInt32",
	UInt64:   "UInt64",
	Float32:  "Float32",
	Float64:  "Float64",
}

// String returns the ClickHouse-style name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Column is a named, typed column.
type Column struct {
	Name string
	Kind Kind
}

// Table describes one layer table.
type Table struct {
	// Name is the qualified "<layer>.<table>" name.
	Name string

	// Layer is one of LayerBronze, LayerSilver, LayerGold.
	Layer string

	Columns []Column

	// OrderBy lists the sort key. A column prefixed with "-" sorts descending.
	OrderBy []string
}

// Database returns the part of the name before the dot.
func (t Table) Database() string {
	db, _, _ := strings.Cut(t.Name, ".")
	return db
}

// Short returns the part of the name after the dot.
func (t Table) Short() string {
	_, name, ok := strings.Cut(t.Name, ".")
	if !ok {
		return t.Name
	}
	return name
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Require checks that every required column is among present. The first
// absent column, in required order, is reported as a schema violation.
func Require(table string, present []string, required ...string) error {
	have := make(map[string]struct{}, len(present))
	for _, p := range present {
		have[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[strings.ToLower(r)]; !ok {
			return errors.NewMissingColumn(table, r)
		}
	}
	return nil
}

// RequireTable is Require with every column of t.
func RequireTable(t Table, present []string) error {
	return Require(t.Name, present, t.ColumnNames()...)
}
