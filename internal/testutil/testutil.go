// Package testutil provides shared fixtures and helpers for package tests.
//
// Goroutine helpers follow the error channel pattern: t.Fatal must never be
// called from a goroutine other than the test's own, so workers return
// errors and the test goroutine reports them.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/medallion/internal/bronze"
	"github.com/xtxerr/medallion/internal/warehouse/duckdb"
)

// =============================================================================
// Fixtures
// =============================================================================

// EventsCSV holds six events over two days, including one row with
// unparsable fields and one anonymous request.
const EventsCSV = `event_id,event_ts,user_id,ip_address,http_method,url_path,status_code,bytes_sent,response_time_ms,user_agent,is_suspicious
e1,2024-03-04 10:00:00,u1,1.1.1.1,POST,/login,401,100,50,Mozilla/5.0,false
e2,2024-03-04 10:30:00,u1,1.1.1.1,POST,/login,200,200,70,Mozilla/5.0,false
e3,2024-03-04 11:00:00,u2,2.2.2.2,GET,/admin/users,200,5000,300,python-requests/2.31,true
e4,2024-03-05 09:15:00,,3.3.3.3,GET,/,500,0,900,Googlebot/2.1,false
e5,2024-03-05 09:45:00,u3,1.1.1.1,GET,/products,404,150,40,Mozilla/5.0,false
e6,garbage,u2,2.2.2.2,GET,/api/auth/token,abc,,,curl/8.0,
`

// UsersJSON holds the user dimension as an array of extended-JSON documents.
const UsersJSON = `[
  {"_id": "u1", "username": "ana", "email": "ana@example.com", "role": "admin", "country": "PT", "created_at": {"$date": "2023-01-02T03:04:05Z"}, "is_premium": true, "risk_score": 0.8},
  {"_id": "u2", "username": "bo", "email": "bo@example.com", "role": "user", "country": "DE", "is_premium": false, "risk_score": 0.2}
]`

// IPReputationNDJSON holds the IP dimension as newline-delimited JSON.
const IPReputationNDJSON = `{"ip": "1.1.1.1", "source": "abuseipdb", "risk_level": "high", "threat_type": "brute_force", "last_seen": "2024-03-01T00:00:00Z"}
{"ip": "2.2.2.2", "source": "internal", "risk_level": "Critical", "threat_type": "credential_stuffing"}
`

// File names used by WriteSources.
const (
	EventsFile       = "web_logs.csv"
	UsersFile        = "users.json"
	IPReputationFile = "ip_reputation.json"
)

// WriteSources writes the fixture sources into dir and returns their paths.
func WriteSources(t testing.TB, dir string) bronze.Sources {
	t.Helper()
	src := bronze.Sources{
		Events:       filepath.Join(dir, EventsFile),
		Users:        filepath.Join(dir, UsersFile),
		IPReputation: filepath.Join(dir, IPReputationFile),
	}
	WriteFile(t, src.Events, EventsCSV)
	WriteFile(t, src.Users, UsersJSON)
	WriteFile(t, src.IPReputation, IPReputationNDJSON)
	return src
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// OpenDuckDB opens an in-memory DuckDB store closed at test cleanup.
func OpenDuckDB(t testing.TB) *duckdb.Store {
	t.Helper()
	store, err := duckdb.New(duckdb.DefaultConfig())
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// Goroutines
// =============================================================================

// GoroutineTest runs functions concurrently and reports their errors from
// the test goroutine.
//
//	gt := testutil.NewGoroutineTest(t)
//	defer gt.Wait()
//	gt.Go(func() error { ... })
type GoroutineTest struct {
	t      testing.TB
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context expires after
// timeout.
func NewGoroutineTest(t testing.TB, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Context returns the shared context.
func (gt *GoroutineTest) Context() context.Context { return gt.ctx }

// Go runs fn in a goroutine and collects its error.
func (gt *GoroutineTest) Go(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine returned and fails the test on errors.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()
	for _, err := range gt.errs {
		gt.t.Error(err)
	}
}

// =============================================================================
// Polling
// =============================================================================

// Eventually polls condition until it holds or timeout elapses.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
