// Package silver turns Bronze rows into the typed, enriched fact table.
//
// Enrichment is a pure per-event function over two dimension indexes, so the
// event set can be split into partitions and enriched concurrently. Every
// Bronze event yields exactly one Silver row: unparsable values and missed
// joins fall back to fixed defaults and are counted, never dropped.
package silver

import (
	"strings"
	"time"

	"github.com/xtxerr/medallion/internal/bronze"
	"github.com/xtxerr/medallion/internal/coerce"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Defaults substituted for unmatched or blank dimension attributes.
const (
	DefaultUsername   = "Anonymous"
	DefaultRole       = "guest"
	DefaultCountry    = "XX"
	DefaultRiskLevel  = "unknown"
	DefaultThreatType = "benign"
)

// Status classes.
const (
	Status2xx   = "2xx"
	Status3xx   = "3xx"
	Status4xx   = "4xx"
	Status5xx   = "5xx"
	StatusOther = "other"
)

// Event is one row of silver.logs_enriched.
type Event struct {
	EventID          string    `parquet:"event_id,dict"`
	EventTS          time.Time `parquet:"event_ts"`
	UserID           string    `parquet:"user_id,dict"`
	Username         string    `parquet:"username,dict"`
	Email            string    `parquet:"email,dict"`
	Role             string    `parquet:"role,dict"`
	Country          string    `parquet:"country,dict"`
	CreatedAt        time.Time `parquet:"created_at"`
	IsPremium        uint8     `parquet:"is_premium"`
	RiskScore        float32   `parquet:"risk_score"`
	IPAddress        string    `parquet:"ip_address,dict"`
	IPRiskLevel      string    `parquet:"ip_risk_level,dict"`
	IPThreatType     string    `parquet:"ip_threat_type,dict"`
	IPSource         string    `parquet:"ip_source,dict"`
	HTTPMethod       string    `parquet:"http_method,dict"`
	URLPath          string    `parquet:"url_path,dict"`
	StatusCode       int32     `parquet:"status_code"`
	StatusClass      string    `parquet:"status_class,dict"`
	BytesSent        uint64    `parquet:"bytes_sent"`
	ResponseTimeMS   uint32    `parquet:"response_time_ms"`
	UserAgent        string    `parquet:"user_agent,dict"`
	IsSuspiciousRaw  uint8     `parquet:"is_suspicious_raw"`
	IsSuspiciousCalc uint8     `parquet:"is_suspicious_calc"`
}

// Values follows schema.SilverEvents.
func (e Event) Values() []any {
	return []any{
		e.EventID,
		e.EventTS,
		e.UserID,
		e.Username,
		e.Email,
		e.Role,
		e.Country,
		e.CreatedAt,
		e.IsPremium,
		e.RiskScore,
		e.IPAddress,
		e.IPRiskLevel,
		e.IPThreatType,
		e.IPSource,
		e.HTTPMethod,
		e.URLPath,
		e.StatusCode,
		e.StatusClass,
		e.BytesSent,
		e.ResponseTimeMS,
		e.UserAgent,
		e.IsSuspiciousRaw,
		e.IsSuspiciousCalc,
	}
}

// =============================================================================
// Derived fields
// =============================================================================

type statusRange struct {
	lo, hi int32
	class  string
}

// statusRanges is checked in order; the first match wins.
var statusRanges = []statusRange{
	{200, 299, Status2xx},
	{300, 399, Status3xx},
	{400, 499, Status4xx},
	{500, 599, Status5xx},
}

// ClassifyStatus buckets an HTTP status code. Codes outside 200..599,
// including the 0 sentinel, are "other".
func ClassifyStatus(code int32) string {
	for _, r := range statusRanges {
		if code >= r.lo && code <= r.hi {
			return r.class
		}
	}
	return StatusOther
}

var suspiciousStatus = map[int32]struct{}{
	401: {}, 403: {}, 429: {}, 500: {}, 503: {},
}

// IsSuspicious reports whether any one signal flags the event: a high or
// critical IP, a non-benign threat type, or a suspicious status code.
func IsSuspicious(riskLevel, threatType string, status int32) bool {
	if riskLevel == "high" || riskLevel == "critical" {
		return true
	}
	if threatType != "" && threatType != DefaultThreatType {
		return true
	}
	_, ok := suspiciousStatus[status]
	return ok
}

func flag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func normalize(r coerce.Raw) string {
	return strings.ToLower(strings.TrimSpace(string(r)))
}

func orDefault(r coerce.Raw, def string) string {
	if r.IsEmpty() {
		return def
	}
	return string(r)
}

// =============================================================================
// Dimensions
// =============================================================================

// Dimensions indexes the reference tables by join key.
type Dimensions struct {
	users map[string]bronze.User
	ips   map[string]bronze.IPReputation
}

// NewDimensions builds the indexes. Rows are applied in Seq order, so for a
// duplicated key the last loaded row wins. Blank keys never join.
func NewDimensions(users []bronze.User, ips []bronze.IPReputation) *Dimensions {
	d := &Dimensions{
		users: make(map[string]bronze.User, len(users)),
		ips:   make(map[string]bronze.IPReputation, len(ips)),
	}
	for _, u := range sortedBySeq(users, func(u bronze.User) uint64 { return u.Seq }) {
		if !u.ID.IsEmpty() {
			d.users[string(u.ID)] = u
		}
	}
	for _, r := range sortedBySeq(ips, func(r bronze.IPReputation) uint64 { return r.Seq }) {
		if !r.IP.IsEmpty() {
			d.ips[string(r.IP)] = r
		}
	}
	return d
}

// User looks up a user by _id.
func (d *Dimensions) User(id coerce.Raw) (bronze.User, bool) {
	u, ok := d.users[string(id)]
	return u, ok
}

// IP looks up an IP reputation row by ip.
func (d *Dimensions) IP(ip coerce.Raw) (bronze.IPReputation, bool) {
	r, ok := d.ips[string(ip)]
	return r, ok
}

// Len returns the number of distinct users and IPs.
func (d *Dimensions) Len() (users, ips int) {
	return len(d.users), len(d.ips)
}

// =============================================================================
// Enrichment
// =============================================================================

// JoinStats counts missed dimension lookups.
type JoinStats struct {
	UnmatchedUsers int
	UnmatchedIPs   int
}

// Add accumulates other into s.
func (s *JoinStats) Add(other JoinStats) {
	s.UnmatchedUsers += other.UnmatchedUsers
	s.UnmatchedIPs += other.UnmatchedIPs
}

// Enrich produces the Silver row for one Bronze event. Parse failures are
// recorded in stats (which may be nil); missed joins are recorded in js.
func Enrich(e bronze.Event, dims *Dimensions, stats *coerce.Stats, js *JoinStats) Event {
	observe := func(field string, raw coerce.Raw, ok bool) {
		if stats != nil {
			stats.Observe(field, raw, ok)
		}
	}

	ts, ok := e.EventTS.Timestamp()
	observe("event_ts", e.EventTS, ok)

	status, ok := e.StatusCode.Int32()
	observe("status_code", e.StatusCode, ok)

	bytesSent, ok := e.BytesSent.Uint64()
	observe("bytes_sent", e.BytesSent, ok)

	respTime, ok := e.ResponseTimeMS.Uint32()
	observe("response_time_ms", e.ResponseTimeMS, ok)

	out := Event{
		EventID:         string(e.EventID),
		EventTS:         ts,
		UserID:          string(e.UserID),
		IPAddress:       string(e.IPAddress),
		HTTPMethod:      string(e.HTTPMethod),
		URLPath:         string(e.URLPath),
		StatusCode:      status,
		StatusClass:     ClassifyStatus(status),
		BytesSent:       bytesSent,
		ResponseTimeMS:  respTime,
		UserAgent:       string(e.UserAgent),
		IsSuspiciousRaw: e.IsSuspicious.Flag(),
	}

	if u, found := dims.User(e.UserID); found {
		out.Username = orDefault(u.Username, DefaultUsername)
		out.Email = string(u.Email)
		out.Role = orDefault(u.Role, DefaultRole)
		out.Country = orDefault(u.Country, DefaultCountry)

		created, ok := u.CreatedAt.Timestamp()
		observe("created_at", u.CreatedAt, ok)
		out.CreatedAt = created

		out.IsPremium = u.IsPremium.Flag()

		score, ok := u.RiskScore.Float32()
		observe("risk_score", u.RiskScore, ok)
		out.RiskScore = score
	} else {
		js.UnmatchedUsers++
		out.Username = DefaultUsername
		out.Role = DefaultRole
		out.Country = DefaultCountry
		out.CreatedAt = coerce.Epoch
	}

	if r, found := dims.IP(e.IPAddress); found {
		out.IPRiskLevel = orDefault(coerce.Raw(normalize(r.RiskLevel)), DefaultRiskLevel)
		out.IPThreatType = orDefault(coerce.Raw(normalize(r.ThreatType)), DefaultThreatType)
		out.IPSource = string(r.Source)
	} else {
		js.UnmatchedIPs++
		out.IPRiskLevel = DefaultRiskLevel
		out.IPThreatType = DefaultThreatType
	}

	out.IsSuspiciousCalc = flag(IsSuspicious(out.IPRiskLevel, out.IPThreatType, status))

	return out
}

// ScanEvent reads one silver.logs_enriched row selected in table order.
func ScanEvent(row warehouse.Scanner) (Event, error) {
	var e Event
	err := row.Scan(
		&e.EventID,
		&e.EventTS,
		&e.UserID,
		&e.Username,
		&e.Email,
		&e.Role,
		&e.Country,
		&e.CreatedAt,
		&e.IsPremium,
		&e.RiskScore,
		&e.IPAddress,
		&e.IPRiskLevel,
		&e.IPThreatType,
		&e.IPSource,
		&e.HTTPMethod,
		&e.URLPath,
		&e.StatusCode,
		&e.StatusClass,
		&e.BytesSent,
		&e.ResponseTimeMS,
		&e.UserAgent,
		&e.IsSuspiciousRaw,
		&e.IsSuspiciousCalc,
	)
	e.EventTS = e.EventTS.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e, err
}
