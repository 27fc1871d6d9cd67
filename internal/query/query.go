// Package query answers read-only questions against a populated warehouse:
// canned Gold insights, per-table row counts and ad-hoc SQL.
package query

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/gold"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// DefaultTop is the number of IPs and users listed by Insights.
const DefaultTop = 5

// Report is the canned Gold overview.
type Report struct {
	Daily    []gold.DailyTraffic
	TopIPs   []gold.IPThreat
	TopUsers []gold.UserActivity
	Security []gold.SecuritySummary
}

// Insights reads the committed Gold set. Gold tables are stored in ranking
// order, so the top lists are prefixes.
func Insights(ctx context.Context, store warehouse.Store, top int) (*Report, error) {
	if top <= 0 {
		top = DefaultTop
	}
	t, err := gold.Read(ctx, store)
	if err != nil {
		return nil, errors.Wrap(err, "read gold")
	}
	return &Report{
		Daily:    t.DailyTraffic,
		TopIPs:   t.IPThreat[:min(top, len(t.IPThreat))],
		TopUsers: t.UserActivity[:min(top, len(t.UserActivity))],
		Security: t.SecuritySummary,
	}, nil
}

// Render writes the report as text tables.
func (r *Report) Render(w io.Writer) {
	section(w, "Daily traffic")
	rows := make([][]string, len(r.Daily))
	for i, d := range r.Daily {
		rows[i] = []string{
			date(d.EventDate), u64(d.TotalRequests), u64(d.UniqueUsers), u64(d.UniqueIPs),
			f2(d.AvgResponseTimeMS), f2(d.P95ResponseTimeMS), pct(d.ErrorRate), pct(d.SuspiciousRate), pct(d.BotRate),
		}
	}
	table(w, []string{"date", "requests", "users", "ips", "avg ms", "p95 ms", "errors", "suspicious", "bots"}, rows)

	section(w, fmt.Sprintf("Top %d threatening IPs", len(r.TopIPs)))
	rows = make([][]string, len(r.TopIPs))
	for i, ip := range r.TopIPs {
		rows[i] = []string{
			ip.IPAddress, ip.IPRiskLevel, ip.IPThreatType, u64(ip.TotalRequests),
			u64(ip.FailedLogins), u64(ip.AdminAccessAttempts), f2(ip.ThreatScore),
		}
	}
	table(w, []string{"ip", "risk", "threat", "requests", "failed logins", "admin", "score"}, rows)

	section(w, fmt.Sprintf("Top %d risky users", len(r.TopUsers)))
	rows = make([][]string, len(r.TopUsers))
	for i, u := range r.TopUsers {
		rows[i] = []string{
			u.UserID, u.Username, u.UserRole, u64(u.TotalRequests),
			u64(u.FailedLogins), pct(u.LoginSuccessRate), f2(u.CombinedRiskScore),
		}
	}
	table(w, []string{"user", "name", "role", "requests", "failed logins", "login ok", "score"}, rows)

	section(w, "Security summary")
	rows = make([][]string, len(r.Security))
	for i, s := range r.Security {
		rows[i] = []string{
			date(s.SummaryDate), u64(s.TotalEvents), u64(s.HighRiskEvents),
			strconv.FormatUint(uint64(s.CriticalIPsActive), 10),
			u64(s.BruteForceAttempts), u64(s.CredentialStuffingAttempts),
			f2(s.AvgThreatScore), s.TopThreatType,
		}
	}
	table(w, []string{"date", "events", "high risk", "critical ips", "brute force", "cred stuffing", "avg threat", "top threat"}, rows)
}

// TableCount is the row count of one table. Missing tables have Exists
// false.
type TableCount struct {
	Table  string `json:"table"`
	Layer  string `json:"layer"`
	Rows   int64  `json:"rows"`
	Exists bool   `json:"exists"`
}

// Verify counts the rows of every pipeline table. Missing tables are
// reported, not treated as errors.
func Verify(ctx context.Context, store warehouse.Store) ([]TableCount, error) {
	tables := schema.All()
	out := make([]TableCount, 0, len(tables))
	for _, t := range tables {
		_, err := store.Columns(ctx, t.Name)
		if errors.Is(err, errors.ErrTableNotFound) {
			out = append(out, TableCount{Table: t.Name, Layer: t.Layer})
			continue
		}
		if err != nil {
			return nil, err
		}
		n, err := store.Count(ctx, t.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", t.Name)
		}
		out = append(out, TableCount{Table: t.Name, Layer: t.Layer, Rows: n, Exists: true})
	}
	return out, nil
}

// RenderCounts writes Verify output as a table.
func RenderCounts(w io.Writer, counts []TableCount) {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Layer, c.Table, strconv.FormatInt(c.Rows, 10)}
		if !c.Exists {
			rows[i][2] = "missing"
		}
	}
	table(w, []string{"layer", "table", "rows"}, rows)
}

// Exec runs ad-hoc SQL.
func Exec(ctx context.Context, store warehouse.Store, sql string) (*warehouse.Result, error) {
	return store.Query(ctx, sql)
}

// RenderResult writes an ad-hoc result as a table followed by its row count.
func RenderResult(w io.Writer, res *warehouse.Result) {
	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = Format(v)
		}
	}
	table(w, res.Columns, rows)
	fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

// Format renders a single warehouse value.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format(time.DateTime)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// Formatting helpers
// =============================================================================

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n== %s ==\n", title)
}

func table(w io.Writer, header []string, rows [][]string) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.AppendBulk(rows)
	tw.Render()
}

func date(t time.Time) string { return t.UTC().Format(time.DateOnly) }
func u64(n uint64) string     { return strconv.FormatUint(n, 10) }
func f2(f float64) string     { return strconv.FormatFloat(f, 'f', 2, 64) }
func pct(f float64) string    { return strconv.FormatFloat(f*100, 'f', 1, 64) + "%" }
