// Package bronze holds the raw layer: untyped copies of the producer
// outputs, stamped with their load order.
//
// Every field is a coerce.Raw. Nothing is validated here; Silver decides how
// each value is interpreted.
package bronze

import (
	"github.com/xtxerr/medallion/internal/coerce"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Event is one raw web log row.
type Event struct {
	Seq            uint64
	EventID        coerce.Raw
	EventTS        coerce.Raw
	UserID         coerce.Raw
	IPAddress      coerce.Raw
	HTTPMethod     coerce.Raw
	URLPath        coerce.Raw
	StatusCode     coerce.Raw
	BytesSent      coerce.Raw
	ResponseTimeMS coerce.Raw
	UserAgent      coerce.Raw
	IsSuspicious   coerce.Raw
}

// Values follows schema.BronzeEvents.
func (e Event) Values() []any {
	return []any{
		e.Seq,
		string(e.EventID),
		string(e.EventTS),
		string(e.UserID),
		string(e.IPAddress),
		string(e.HTTPMethod),
		string(e.URLPath),
		string(e.StatusCode),
		string(e.BytesSent),
		string(e.ResponseTimeMS),
		string(e.UserAgent),
		string(e.IsSuspicious),
	}
}

// User is one raw user document.
type User struct {
	Seq       uint64
	ID        coerce.Raw
	Username  coerce.Raw
	Email     coerce.Raw
	Role      coerce.Raw
	Country   coerce.Raw
	CreatedAt coerce.Raw
	IsPremium coerce.Raw
	RiskScore coerce.Raw
}

// Values follows schema.BronzeUsers.
func (u User) Values() []any {
	return []any{
		u.Seq,
		string(u.ID),
		string(u.Username),
		string(u.Email),
		string(u.Role),
		string(u.Country),
		string(u.CreatedAt),
		string(u.IsPremium),
		string(u.RiskScore),
	}
}

// IPReputation is one raw IP reputation document.
type IPReputation struct {
	Seq        uint64
	IP         coerce.Raw
	Source     coerce.Raw
	RiskLevel  coerce.Raw
	ThreatType coerce.Raw
	LastSeen   coerce.Raw
}

// Values follows schema.BronzeIPReputation.
func (r IPReputation) Values() []any {
	return []any{
		r.Seq,
		string(r.IP),
		string(r.Source),
		string(r.RiskLevel),
		string(r.ThreatType),
		string(r.LastSeen),
	}
}

// =============================================================================
// Scanning
// =============================================================================

// scanRaw scans a seq column followed by len(dst) text columns.
func scanRaw(row warehouse.Scanner, seq *uint64, dst ...*coerce.Raw) error {
	strs := make([]string, len(dst))
	args := make([]any, 0, len(dst)+1)
	args = append(args, seq)
	for i := range strs {
		args = append(args, &strs[i])
	}
	if err := row.Scan(args...); err != nil {
		return err
	}
	for i, s := range strs {
		*dst[i] = coerce.Raw(s)
	}
	return nil
}

// ScanEvent reads one schema.BronzeEvents row.
func ScanEvent(row warehouse.Scanner) (Event, error) {
	var e Event
	err := scanRaw(row, &e.Seq,
		&e.EventID, &e.EventTS, &e.UserID, &e.IPAddress, &e.HTTPMethod, &e.URLPath,
		&e.StatusCode, &e.BytesSent, &e.ResponseTimeMS, &e.UserAgent, &e.IsSuspicious)
	return e, err
}

// ScanUser reads one schema.BronzeUsers row.
func ScanUser(row warehouse.Scanner) (User, error) {
	var u User
	err := scanRaw(row, &u.Seq,
		&u.ID, &u.Username, &u.Email, &u.Role, &u.Country, &u.CreatedAt, &u.IsPremium, &u.RiskScore)
	return u, err
}

// ScanIPReputation reads one schema.BronzeIPReputation row.
func ScanIPReputation(row warehouse.Scanner) (IPReputation, error) {
	var r IPReputation
	err := scanRaw(row, &r.Seq, &r.IP, &r.Source, &r.RiskLevel, &r.ThreatType, &r.LastSeen)
	return r, err
}
