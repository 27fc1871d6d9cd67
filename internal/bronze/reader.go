package bronze

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xtxerr/medallion/internal/coerce"
	"github.com/xtxerr/medallion/internal/errors"
)

// =============================================================================
// CSV (web logs)
// =============================================================================

// ReadEventsCSV reads a header-first CSV. Columns are matched by name, case
// and surrounding blanks ignored. Absent columns and short rows yield "".
// Sequence numbers start at 1 in file order.
func ReadEventsCSV(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("events csv: empty input: %w", errors.ErrInvalidSource)
	}
	if err != nil {
		return nil, fmt.Errorf("events csv header: %w: %w", errors.ErrInvalidSource, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		index[name] = i
	}
	if _, ok := index["event_id"]; !ok {
		return nil, fmt.Errorf("events csv: header has no event_id column: %w", errors.ErrInvalidSource)
	}

	var events []Event
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("events csv: %w: %w", errors.ErrInvalidSource, err)
		}

		field := func(name string) coerce.Raw {
			i, ok := index[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return coerce.Raw(rec[i])
		}

		events = append(events, Event{
			Seq:            uint64(len(events) + 1),
			EventID:        field("event_id"),
			EventTS:        field("event_ts"),
			UserID:         field("user_id"),
			IPAddress:      field("ip_address"),
			HTTPMethod:     field("http_method"),
			URLPath:        field("url_path"),
			StatusCode:     field("status_code"),
			BytesSent:      field("bytes_sent"),
			ResponseTimeMS: field("response_time_ms"),
			UserAgent:      field("user_agent"),
			IsSuspicious:   field("is_suspicious"),
		})
	}
	return events, nil
}

// =============================================================================
// JSON documents (users, IP reputation)
// =============================================================================

// Document is a decoded source document.
type Document map[string]any

// Get stringifies a field. Extended-JSON wrappers such as {"$oid": "..."} or
// {"$date": "..."} are unwrapped first.
func (d Document) Get(key string) coerce.Raw {
	return coerce.Of(unwrapExtended(d[key]))
}

func unwrapExtended(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for k, inner := range m {
		if strings.HasPrefix(k, "$") {
			return unwrapExtended(inner)
		}
	}
	return v
}

// ReadDocuments decodes either a JSON array of objects or a stream of
// newline-delimited objects (mongoexport's default).
func ReadDocuments(r io.Reader) ([]Document, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var docs []Document
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("decode document array: %w: %w", errors.ErrInvalidSource, err)
		}
		return docs, nil
	}

	var docs []Document
	for {
		var d Document
		err := dec.Decode(&d)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document %d: %w: %w", len(docs)+1, errors.ErrInvalidSource, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// ReadUsers reads user documents keyed by _id.
func ReadUsers(r io.Reader) ([]User, error) {
	docs, err := ReadDocuments(r)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	users := make([]User, len(docs))
	for i, d := range docs {
		users[i] = User{
			Seq:       uint64(i + 1),
			ID:        d.Get("_id"),
			Username:  d.Get("username"),
			Email:     d.Get("email"),
			Role:      d.Get("role"),
			Country:   d.Get("country"),
			CreatedAt: d.Get("created_at"),
			IsPremium: d.Get("is_premium"),
			RiskScore: d.Get("risk_score"),
		}
	}
	return users, nil
}

// ReadIPReputation reads IP reputation documents keyed by ip.
func ReadIPReputation(r io.Reader) ([]IPReputation, error) {
	docs, err := ReadDocuments(r)
	if err != nil {
		return nil, fmt.Errorf("ip reputation: %w", err)
	}
	ips := make([]IPReputation, len(docs))
	for i, d := range docs {
		ips[i] = IPReputation{
			Seq:        uint64(i + 1),
			IP:         d.Get("ip"),
			Source:     d.Get("source"),
			RiskLevel:  d.Get("risk_level"),
			ThreatType: d.Get("threat_type"),
			LastSeen:   d.Get("last_seen"),
		}
	}
	return ips, nil
}
