package clickhouse

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/medallion/internal/schema"
)

func TestCreateTableSQL(t *testing.T) {
	ddl := createTableSQL(schema.GoldUserActivity)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS gold.user_activity_metrics",
		"first_activity DateTime('UTC')",
		"is_premium UInt8",
		"ENGINE = MergeTree() ORDER BY (user_id)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, "-combined_risk_score") {
		t.Error("descending keys must not reach the physical order")
	}
}

func TestCreateTableSQL_NoOrder(t *testing.T) {
	tbl := schema.Table{
		Name:    "gold.x",
		Columns: []schema.Column{{Name: "a", Kind: schema.String}},
		OrderBy: []string{"-a"},
	}
	if ddl := createTableSQL(tbl); !strings.HasSuffix(ddl, "ORDER BY tuple()") {
		t.Errorf("unexpected DDL %s", ddl)
	}
}

func TestScanTargets(t *testing.T) {
	p := newScanTarget(reflect.TypeOf(time.Time{}))
	if _, ok := p.(*time.Time); !ok {
		t.Fatalf("expected *time.Time, got %T", p)
	}
	*(p.(*time.Time)) = time.Unix(0, 0).UTC()
	if got := deref(p); got.(time.Time).Unix() != 0 {
		t.Errorf("unexpected %v", got)
	}

	generic := newScanTarget(nil)
	if deref(generic) != nil {
		t.Error("nil type should deref to nil")
	}
}
