package gold

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/xtxerr/medallion/config"
	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/silver"
	"github.com/xtxerr/medallion/internal/warehouse"
	"github.com/xtxerr/medallion/internal/warehouse/duckdb"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.DateTime, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// sampleEvents spans two days. 2024-03-04 is a Monday.
func sampleEvents() []silver.Event {
	return []silver.Event{
		{
			EventID: "e1", EventTS: ts("2024-03-04 10:00:00"), UserID: "u1", Username: "ana", Role: "user",
			Country: "DE", IsPremium: 1, RiskScore: 0.5, IPAddress: "1.1.1.1", IPRiskLevel: "high",
			IPThreatType: "brute_force", URLPath: "/login", StatusCode: 401, BytesSent: 10,
			ResponseTimeMS: 100, UserAgent: "Mozilla/5.0", IsSuspiciousCalc: 1,
		},
		{
			EventID: "e2", EventTS: ts("2024-03-04 10:30:00"), UserID: "u1", Username: "ana", Role: "user",
			Country: "DE", IsPremium: 1, RiskScore: 0.5, IPAddress: "1.1.1.1", IPRiskLevel: "high",
			IPThreatType: "brute_force", URLPath: "/login", StatusCode: 200, BytesSent: 20,
			ResponseTimeMS: 200, UserAgent: "curl/8.4", IsSuspiciousCalc: 1,
		},
		{
			EventID: "e3", EventTS: ts("2024-03-04 11:00:00"), UserID: "u2", Username: "bo", Role: "admin",
			Country: "FR", IPAddress: "2.2.2.2", IPRiskLevel: "low", IPThreatType: "benign",
			URLPath: "/admin/users", StatusCode: 200, BytesSent: 30, ResponseTimeMS: 300,
		},
		{
			EventID: "e4", EventTS: ts("2024-03-05 09:00:00"), UserID: "", Username: silver.DefaultUsername,
			Role: silver.DefaultRole, Country: silver.DefaultCountry, IPAddress: "2.2.2.2", IPRiskLevel: "low",
			IPThreatType: "benign", URLPath: "/", StatusCode: 500, BytesSent: 40, ResponseTimeMS: 400,
			IsSuspiciousCalc: 1,
		},
	}
}

func testOptions() Options {
	return Options{
		Classify:           PrefixClassifier(config.DefaultAuthPrefixes, config.DefaultAdminPrefixes),
		IsBot:              MarkerDetector(config.DefaultBotMarkers),
		PercentileAccuracy: config.DefaultPercentileAccuracy,
	}
}

func compute(t *testing.T) *Tables {
	t.Helper()
	tables, err := Compute(context.Background(), sampleEvents(), testOptions())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return tables
}

func TestPrefixClassifier(t *testing.T) {
	classify := PrefixClassifier([]string{"/login", "/API/Auth"}, []string{"/admin"})
	tests := []struct {
		path string
		want Category
	}{
		{"/login", CategoryAuthentication},
		{"/LOGIN?next=/", CategoryAuthentication},
		{"/api/auth/token", CategoryAuthentication},
		{"/admin/users", CategoryAdmin},
		{"/", CategoryOther},
		{"", CategoryOther},
		{"/products/admin", CategoryOther},
	}
	for _, tt := range tests {
		if got := classify(tt.path); got != tt.want {
			t.Errorf("classify(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMarkerDetector(t *testing.T) {
	isBot := MarkerDetector([]string{"bot", " Curl ", ""})
	if !isBot("Googlebot/2.1") || !isBot("curl/8.4") {
		t.Error("expected bots to be detected")
	}
	if isBot("Mozilla/5.0") || isBot("") {
		t.Error("unexpected bot match")
	}
}

func TestProject(t *testing.T) {
	facts := Project([]silver.Event{
		{EventTS: ts("2024-03-10 23:59:59"), StatusCode: 404, URLPath: "/login", UserAgent: "bot"},
		{EventTS: ts("2024-03-11 00:00:00"), StatusCode: 399},
	}, PrefixClassifier([]string{"/login"}, nil), MarkerDetector([]string{"bot"}))

	sunday := facts[0]
	if sunday.Weekday != 7 || sunday.Hour != 23 || !sunday.EventDate.Equal(ts("2024-03-10 00:00:00")) {
		t.Errorf("unexpected projection %+v", sunday)
	}
	if !sunday.IsError || !sunday.IsBot || sunday.Category != CategoryAuthentication {
		t.Errorf("unexpected derived flags %+v", sunday)
	}
	if facts[1].Weekday != 1 || facts[1].IsError || facts[1].Category != CategoryOther {
		t.Errorf("unexpected projection %+v", facts[1])
	}
}

func TestScores(t *testing.T) {
	if got := CombinedRiskScore(0.5, 2, 1, 2, 1); !approx(got, 0.15+0.25+0.125+0.02) {
		t.Errorf("CombinedRiskScore = %v", got)
	}
	// distinct IPs saturate at 10
	if got := CombinedRiskScore(0, 0, 0, 1, 50); !approx(got, 0.2) {
		t.Errorf("CombinedRiskScore saturation = %v", got)
	}
	if got := ThreatScore("critical", 1, 1, 1, 1); !approx(got, 1.2+0.25+0.25+0.2) {
		t.Errorf("ThreatScore = %v", got)
	}
	for _, level := range []string{"unknown", "", "bogus"} {
		if RiskRank(level) != 0 {
			t.Errorf("RiskRank(%q) should be 0", level)
		}
	}

	// Zero totals never divide by zero.
	for _, v := range []float64{
		CombinedRiskScore(1, 0, 0, 0, 0),
		ThreatScore("critical", 0, 0, 0, 0),
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("score not finite: %v", v)
		}
	}
}

func TestTallyTop(t *testing.T) {
	if got := (tally{}).top(); got != "" {
		t.Errorf("empty tally top = %q", got)
	}
	if got := (tally{"b": 2, "a": 2, "c": 1}).top(); got != "a" {
		t.Errorf("tie should break to smallest, got %q", got)
	}
}

func TestLatency(t *testing.T) {
	empty, err := NewLatency(0.01)
	if err != nil {
		t.Fatalf("NewLatency: %v", err)
	}
	if empty.Avg() != 0 || empty.Quantile(0.95) != 0 || empty.Max() != 0 {
		t.Error("empty latency should report zeros")
	}

	small, _ := NewLatency(0.01)
	for _, ms := range []uint32{300, 100, 200} {
		small.Add(ms)
	}
	if p95 := small.Quantile(0.95); !approx(p95, 290) {
		t.Errorf("p95 of {100,200,300} = %v, want 290", p95)
	}
	if p50 := small.Quantile(0.5); !approx(p50, 200) {
		t.Errorf("p50 of {100,200,300} = %v, want 200", p50)
	}

	single, _ := NewLatency(0.01)
	single.Add(42)
	if got := single.Quantile(0.95); got != 42 {
		t.Errorf("p95 of one value = %v, want 42", got)
	}

	large, _ := NewLatency(0.01)
	n := uint32(ExactQuantileLimit * 2)
	for i := uint32(1); i <= n; i++ {
		large.Add(i)
	}
	if large.Count() != int64(n) || large.Max() != n || !approx(large.Avg(), float64(n+1)/2) {
		t.Errorf("unexpected stats count=%d max=%d avg=%v", large.Count(), large.Max(), large.Avg())
	}
	want := 0.95 * float64(n)
	if p95 := large.Quantile(0.95); math.Abs(p95-want) > want*0.02 {
		t.Errorf("sketched p95 = %v, want about %v", p95, want)
	}

	disabled, err := NewLatency(0)
	if err != nil {
		t.Fatalf("NewLatency(0): %v", err)
	}
	disabled.Add(10)
	if disabled.Quantile(0.95) != 0 || disabled.Avg() != 10 {
		t.Error("disabled sketch should only skip the quantile")
	}
}

func TestComputeDailyTraffic(t *testing.T) {
	rows := compute(t).DailyTraffic
	if len(rows) != 2 {
		t.Fatalf("expected 2 days, got %d", len(rows))
	}

	d := rows[0]
	if !d.EventDate.Equal(ts("2024-03-04 00:00:00")) {
		t.Errorf("unexpected first day %v", d.EventDate)
	}
	if d.TotalRequests != 3 || d.UniqueUsers != 2 || d.UniqueIPs != 2 || d.TotalBytesSent != 60 {
		t.Errorf("unexpected volume %+v", d)
	}
	if !approx(d.AvgResponseTimeMS, 200) || d.MaxResponseTimeMS != 300 {
		t.Errorf("unexpected latency %+v", d)
	}
	if !approx(d.P95ResponseTimeMS, 290) {
		t.Errorf("p95 = %v, want 290", d.P95ResponseTimeMS)
	}
	if d.ErrorCount != 1 || d.ClientErrorCount != 1 || d.ServerErrorCount != 0 || !approx(d.ErrorRate, 1.0/3) {
		t.Errorf("unexpected errors %+v", d)
	}
	if d.SuspiciousCount != 2 || d.BotRequests != 1 || !approx(d.BotRate, 1.0/3) {
		t.Errorf("unexpected security counts %+v", d)
	}

	if rows[1].ServerErrorCount != 1 || rows[1].TotalRequests != 1 || rows[1].UniqueUsers != 1 {
		t.Errorf("unexpected second day %+v", rows[1])
	}
}

func TestComputeUserActivity(t *testing.T) {
	rows := compute(t).UserActivity
	if len(rows) != 2 {
		t.Fatalf("events without user_id must be excluded, got %d rows", len(rows))
	}

	u1 := rows[0]
	if u1.UserID != "u1" || u1.Username != "ana" || u1.IsPremium != 1 {
		t.Fatalf("expected u1 first, got %+v", u1)
	}
	if u1.LoginAttempts != 2 || u1.FailedLogins != 1 || !approx(u1.LoginSuccessRate, 0.5) {
		t.Errorf("unexpected login stats %+v", u1)
	}
	if !u1.FirstActivity.Equal(ts("2024-03-04 10:00:00")) || !u1.LastActivity.Equal(ts("2024-03-04 10:30:00")) {
		t.Errorf("unexpected activity window %v - %v", u1.FirstActivity, u1.LastActivity)
	}
	if u1.DistinctDaysActive != 1 || u1.DistinctIPsUsed != 1 || u1.DistinctURLsAccessed != 1 {
		t.Errorf("unexpected distinct counts %+v", u1)
	}
	if !approx(u1.CombinedRiskScore, 0.15+0.25+0.125+0.02) {
		t.Errorf("CombinedRiskScore = %v", u1.CombinedRiskScore)
	}

	u2 := rows[1]
	if u2.UserID != "u2" || u2.AdminAccessCount != 1 || u2.LoginAttempts != 0 || u2.LoginSuccessRate != 1.0 {
		t.Errorf("unexpected u2 %+v", u2)
	}
	if !approx(u2.CombinedRiskScore, 0.02) {
		t.Errorf("u2 CombinedRiskScore = %v", u2.CombinedRiskScore)
	}
}

func TestComputeIPThreat(t *testing.T) {
	rows := compute(t).IPThreat
	if len(rows) != 2 {
		t.Fatalf("expected 2 IPs, got %d", len(rows))
	}

	a := rows[0]
	if a.IPAddress != "1.1.1.1" || a.IPRiskLevel != "high" || a.IPThreatType != "brute_force" {
		t.Fatalf("expected the high risk IP first, got %+v", a)
	}
	if a.LoginAttempts != 2 || a.FailedLogins != 1 || a.AuthFailures != 1 || a.SuspiciousEvents != 2 {
		t.Errorf("unexpected counts %+v", a)
	}
	if !approx(a.ThreatScore, 0.9+0.25+0.1) {
		t.Errorf("ThreatScore = %v", a.ThreatScore)
	}

	b := rows[1]
	if b.DistinctUsersAffected != 2 || b.DaysActive != 2 || b.AdminAccessAttempts != 1 || b.ErrorEvents != 1 {
		t.Errorf("unexpected second IP %+v", b)
	}
	if !approx(b.ThreatScore, 0.3+0.125+0.125) {
		t.Errorf("ThreatScore = %v", b.ThreatScore)
	}
}

func TestComputeSecuritySummary(t *testing.T) {
	rows := compute(t).SecuritySummary
	if len(rows) != 2 {
		t.Fatalf("expected 2 days, got %d", len(rows))
	}

	d := rows[0]
	if d.TotalEvents != 3 || d.HighRiskEvents != 2 || d.TotalUniqueIPs != 2 {
		t.Errorf("unexpected volume %+v", d)
	}
	if d.CriticalIPsActive != 0 || d.HighRiskIPsActive != 1 || d.BruteForceAttempts != 2 {
		t.Errorf("unexpected ip counts %+v", d)
	}
	if d.PremiumUsersAffected != 1 || d.AdminAccountsTargeted != 0 || d.TotalUsersActive != 2 {
		t.Errorf("unexpected user counts %+v", d)
	}
	if !approx(d.AvgThreatScore, 7.0/3) || d.MaxThreatScore != 3 || d.TopThreatType != "brute_force" {
		t.Errorf("unexpected threat summary %+v", d)
	}

	if rows[1].TopThreatType != "" || rows[1].HighRiskEvents != 1 || !approx(rows[1].AvgThreatScore, 1) {
		t.Errorf("unexpected second day %+v", rows[1])
	}
}

func TestComputeHourlyPatterns(t *testing.T) {
	rows := compute(t).HourlyPatterns
	if len(rows) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(rows))
	}
	want := [][2]uint8{{1, 10}, {1, 11}, {2, 9}}
	for i, w := range want {
		if rows[i].DayOfWeek != w[0] || rows[i].EventHour != w[1] {
			t.Errorf("row %d = (%d, %d), want %v", i, rows[i].DayOfWeek, rows[i].EventHour, w)
		}
	}
	if rows[0].TopURLCategory != string(CategoryAuthentication) || !approx(rows[0].BotRate, 0.5) {
		t.Errorf("unexpected first bucket %+v", rows[0])
	}
	if rows[1].TopURLCategory != string(CategoryAdmin) || rows[2].ErrorRate != 1 {
		t.Errorf("unexpected buckets %+v", rows[1:])
	}
}

func TestCompute_Empty(t *testing.T) {
	tables, err := Compute(context.Background(), nil, testOptions())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for name, n := range tables.Counts() {
		if n != 0 {
			t.Errorf("%s: expected 0 rows, got %d", name, n)
		}
	}
}

func newStore(t *testing.T) *duckdb.Store {
	t.Helper()
	store, err := duckdb.New(duckdb.DefaultConfig())
	if err != nil {
		t.Fatalf("duckdb.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEngine_Run(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.EnsureSchema(ctx, schema.All()...); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := store.Replace(ctx, warehouse.NewBatch(schema.SilverEvents, sampleEvents())); err != nil {
		t.Fatalf("seed silver: %v", err)
	}

	res, err := NewEngine(store, testOptions()).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SilverRows != 4 || res.Rows[schema.GoldUserActivity.Name] != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	got, err := Read(ctx, store)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := compute(t)
	if len(got.HourlyPatterns) != len(want.HourlyPatterns) || len(got.IPThreat) != len(want.IPThreat) {
		t.Fatalf("unexpected gold counts %+v", got.Counts())
	}
	if got.UserActivity[0] != want.UserActivity[0] {
		t.Errorf("user row differs after round trip:\n got %+v\nwant %+v", got.UserActivity[0], want.UserActivity[0])
	}
	if !got.DailyTraffic[0].EventDate.Equal(want.DailyTraffic[0].EventDate) {
		t.Errorf("date differs after round trip: %v", got.DailyTraffic[0].EventDate)
	}
}

func TestEngine_MissingSilverColumn(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	broken := schema.SilverEvents
	broken.Columns = nil
	for _, c := range schema.SilverEvents.Columns {
		if c.Name != "status_code" {
			broken.Columns = append(broken.Columns, c)
		}
	}
	if err := store.EnsureSchema(ctx, append(schema.Gold(), broken)...); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	prior := []SecuritySummary{{SummaryDate: ts("2024-01-01 00:00:00"), TotalEvents: 7}}
	if err := store.Replace(ctx, warehouse.NewBatch(schema.GoldSecuritySummary, prior)); err != nil {
		t.Fatalf("seed gold: %v", err)
	}

	_, err := NewEngine(store, testOptions()).Run(ctx)
	if !errors.IsSchemaViolation(err) || !errors.Is(err, errors.ErrMissingColumn) {
		t.Fatalf("expected missing column violation, got %v", err)
	}
	var se *errors.StageError
	if !errors.As(err, &se) || se.Layer != schema.LayerGold {
		t.Errorf("expected gold stage error, got %v", err)
	}

	n, err := store.Count(ctx, schema.GoldSecuritySummary.Name)
	if err != nil || n != 1 {
		t.Errorf("gold must be untouched, got %d rows, %v", n, err)
	}
}
