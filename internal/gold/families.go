package gold

import (
	"cmp"
	"slices"
	"time"
)

// =============================================================================
// Scores
// =============================================================================

// RiskRank maps an IP risk level to its numeric rank.
func RiskRank(level string) float64 {
	switch level {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

// CombinedRiskScore blends a user's source risk score with observed
// behaviour. Ratio terms use a denominator floor of 1.
func CombinedRiskScore(riskScore float64, suspicious, failedLogins, total uint64, distinctIPs int) float64 {
	return 0.30*riskScore +
		0.25*ratio(suspicious, total) +
		0.25*ratio(failedLogins, total) +
		0.20*float64(min(distinctIPs, 10))/10
}

// ThreatScore blends an IP's reputation rank with observed behaviour. Ratio
// terms use a denominator floor of 1.
func ThreatScore(riskLevel string, suspicious, adminAccess, authFailures, total uint64) float64 {
	return 0.30*RiskRank(riskLevel) +
		0.25*ratio(suspicious, total) +
		0.25*ratio(adminAccess, total) +
		0.20*ratio(authFailures, total)
}

// ignoredThreatTypes never count as a day's dominant threat.
var ignoredThreatTypes = map[string]bool{
	"":                 true,
	"benign":           true,
	"internal_traffic": true,
	"unknown":          true,
}

// =============================================================================
// Families
// =============================================================================

// ComputeDailyTraffic aggregates traffic per UTC day. accuracy configures
// the p95 sketch; accuracy <= 0 reports a p95 of 0.
func ComputeDailyTraffic(facts []Fact, accuracy float64) ([]DailyTraffic, error) {
	days, groups := group(facts, func(f *Fact) time.Time { return f.EventDate })

	rows := make([]DailyTraffic, 0, len(days))
	for _, day := range days {
		fs := groups[day]
		lat, err := NewLatency(accuracy)
		if err != nil {
			return nil, err
		}
		users, ips := distinct[string]{}, distinct[string]{}

		r := DailyTraffic{EventDate: day, TotalRequests: uint64(len(fs))}
		for _, f := range fs {
			users.add(f.UserID)
			ips.add(f.IPAddress)
			r.TotalBytesSent += f.BytesSent
			lat.Add(f.ResponseTimeMS)
			if f.IsError {
				r.ErrorCount++
			}
			if f.StatusCode >= 400 && f.StatusCode < 500 {
				r.ClientErrorCount++
			}
			if f.StatusCode >= 500 {
				r.ServerErrorCount++
			}
			if f.Suspicious() {
				r.SuspiciousCount++
			}
			if f.IsBot {
				r.BotRequests++
			}
		}
		r.UniqueUsers = uint64(len(users))
		r.UniqueIPs = uint64(len(ips))
		r.AvgResponseTimeMS = lat.Avg()
		r.P95ResponseTimeMS = lat.Quantile(0.95)
		r.MaxResponseTimeMS = lat.Max()
		r.ErrorRate = ratio(r.ErrorCount, r.TotalRequests)
		r.SuspiciousRate = ratio(r.SuspiciousCount, r.TotalRequests)
		r.BotRate = ratio(r.BotRequests, r.TotalRequests)
		rows = append(rows, r)
	}

	slices.SortFunc(rows, func(a, b DailyTraffic) int { return a.EventDate.Compare(b.EventDate) })
	return rows, nil
}

// ComputeUserActivity aggregates behaviour per known user. Events without a
// user_id are excluded. Descriptive attributes come from the user's first
// event in input order.
func ComputeUserActivity(facts []Fact) []UserActivity {
	ids, groups := group(facts, func(f *Fact) string { return f.UserID })

	rows := make([]UserActivity, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		fs := groups[id]
		first := fs[0]
		days, ips, urls := distinct[time.Time]{}, distinct[string]{}, distinct[string]{}
		var respSum float64

		r := UserActivity{
			UserID:            id,
			Username:          first.Username,
			UserRole:          first.Role,
			UserCountry:       first.Country,
			IsPremium:         first.IsPremium,
			TotalRequests:     uint64(len(fs)),
			FirstActivity:     first.EventTS,
			LastActivity:      first.EventTS,
			OriginalRiskScore: float64(first.RiskScore),
		}
		for _, f := range fs {
			if f.EventTS.Before(r.FirstActivity) {
				r.FirstActivity = f.EventTS
			}
			if f.EventTS.After(r.LastActivity) {
				r.LastActivity = f.EventTS
			}
			days.add(f.EventDate)
			ips.add(f.IPAddress)
			urls.add(f.URLPath)
			respSum += float64(f.ResponseTimeMS)
			r.TotalBytesConsumed += f.BytesSent

			switch f.Category {
			case CategoryAuthentication:
				r.LoginAttempts++
				if f.FailedLogin() {
					r.FailedLogins++
				}
			case CategoryAdmin:
				r.AdminAccessCount++
			}
			if f.IsError {
				r.ErrorCount++
			}
			if f.Suspicious() {
				r.SuspiciousEvents++
			}
		}

		r.DistinctDaysActive = uint32(len(days))
		r.DistinctIPsUsed = uint32(len(ips))
		r.DistinctURLsAccessed = uint32(len(urls))
		r.AvgResponseTimeMS = respSum / float64(len(fs))
		r.LoginSuccessRate = 1.0
		if r.LoginAttempts > 0 {
			r.LoginSuccessRate = 1 - float64(r.FailedLogins)/float64(r.LoginAttempts)
		}
		r.CombinedRiskScore = CombinedRiskScore(r.OriginalRiskScore, r.SuspiciousEvents, r.FailedLogins, r.TotalRequests, len(ips))
		rows = append(rows, r)
	}

	sortDesc(rows,
		func(r UserActivity) float64 { return r.CombinedRiskScore },
		func(r UserActivity) string { return r.UserID })
	return rows
}

// ComputeIPThreat aggregates behaviour per source IP. Reputation attributes
// come from the IP's first event in input order.
func ComputeIPThreat(facts []Fact) []IPThreat {
	addrs, groups := group(facts, func(f *Fact) string { return f.IPAddress })

	rows := make([]IPThreat, 0, len(addrs))
	for _, addr := range addrs {
		fs := groups[addr]
		first := fs[0]
		days, users, urls := distinct[time.Time]{}, distinct[string]{}, distinct[string]{}

		r := IPThreat{
			IPAddress:     addr,
			IPRiskLevel:   first.IPRiskLevel,
			IPThreatType:  first.IPThreatType,
			IPSource:      first.IPSource,
			TotalRequests: uint64(len(fs)),
			FirstSeen:     first.EventTS,
			LastSeen:      first.EventTS,
		}
		for _, f := range fs {
			if f.EventTS.Before(r.FirstSeen) {
				r.FirstSeen = f.EventTS
			}
			if f.EventTS.After(r.LastSeen) {
				r.LastSeen = f.EventTS
			}
			days.add(f.EventDate)
			users.add(f.UserID)
			urls.add(f.URLPath)

			switch f.Category {
			case CategoryAuthentication:
				r.LoginAttempts++
				if f.FailedLogin() {
					r.FailedLogins++
				}
			case CategoryAdmin:
				r.AdminAccessAttempts++
			}
			if f.AuthFailure() {
				r.AuthFailures++
			}
			if f.Suspicious() {
				r.SuspiciousEvents++
			}
			if f.IsError {
				r.ErrorEvents++
			}
		}

		r.DaysActive = uint32(len(days))
		r.DistinctUsersAffected = uint32(len(users))
		r.DistinctURLsAccessed = uint32(len(urls))
		r.ThreatScore = ThreatScore(r.IPRiskLevel, r.SuspiciousEvents, r.AdminAccessAttempts, r.AuthFailures, r.TotalRequests)
		rows = append(rows, r)
	}

	sortDesc(rows,
		func(r IPThreat) float64 { return r.ThreatScore },
		func(r IPThreat) string { return r.IPAddress })
	return rows
}

// ComputeSecuritySummary rolls up security signals per UTC day. The threat
// score columns are the risk rank over events from IPs with a known level.
func ComputeSecuritySummary(facts []Fact) []SecuritySummary {
	days, groups := group(facts, func(f *Fact) time.Time { return f.EventDate })

	rows := make([]SecuritySummary, 0, len(days))
	for _, day := range days {
		fs := groups[day]
		ips, critical, high := distinct[string]{}, distinct[string]{}, distinct[string]{}
		users, premium, admins := distinct[string]{}, distinct[string]{}, distinct[string]{}
		threats := tally{}
		var rankSum float64
		var ranked int

		r := SecuritySummary{SummaryDate: day, TotalEvents: uint64(len(fs))}
		for _, f := range fs {
			risky := f.HighRiskIP() || f.Suspicious()
			if risky {
				r.HighRiskEvents++
			}

			ips.add(f.IPAddress)
			switch f.IPRiskLevel {
			case "critical":
				critical.add(f.IPAddress)
			case "high":
				high.add(f.IPAddress)
			}

			switch f.IPThreatType {
			case "brute_force":
				r.BruteForceAttempts++
			case "credential_stuffing":
				r.CredentialStuffingAttempts++
			case "suspicious_login":
				r.SuspiciousLogins++
			}
			if !ignoredThreatTypes[f.IPThreatType] {
				threats[f.IPThreatType]++
			}

			users.add(f.UserID)
			if risky && f.IsPremium == 1 {
				premium.add(f.UserID)
			}
			if risky && f.Role == "admin" {
				admins.add(f.UserID)
			}

			if f.IPRiskLevel != "unknown" {
				rank := RiskRank(f.IPRiskLevel)
				rankSum += rank
				ranked++
				r.MaxThreatScore = max(r.MaxThreatScore, rank)
			}
		}

		r.TotalUniqueIPs = uint32(len(ips))
		r.CriticalIPsActive = uint32(len(critical))
		r.HighRiskIPsActive = uint32(len(high))
		r.TotalUsersActive = uint32(len(users))
		r.PremiumUsersAffected = uint32(len(premium))
		r.AdminAccountsTargeted = uint32(len(admins))
		if ranked > 0 {
			r.AvgThreatScore = rankSum / float64(ranked)
		}
		r.TopThreatType = threats.top()
		rows = append(rows, r)
	}

	slices.SortFunc(rows, func(a, b SecuritySummary) int { return a.SummaryDate.Compare(b.SummaryDate) })
	return rows
}

type hourKey struct {
	hour, weekday uint8
}

// ComputeHourlyPatterns aggregates traffic shape per (hour, ISO weekday).
func ComputeHourlyPatterns(facts []Fact) []HourlyPattern {
	keys, groups := group(facts, func(f *Fact) hourKey { return hourKey{f.Hour, f.Weekday} })

	rows := make([]HourlyPattern, 0, len(keys))
	for _, k := range keys {
		fs := groups[k]
		users, ips := distinct[string]{}, distinct[string]{}
		categories := tally{}
		var respSum float64
		var errs, susp, bots uint64

		for _, f := range fs {
			users.add(f.UserID)
			ips.add(f.IPAddress)
			categories[string(f.Category)]++
			respSum += float64(f.ResponseTimeMS)
			if f.IsError {
				errs++
			}
			if f.Suspicious() {
				susp++
			}
			if f.IsBot {
				bots++
			}
		}

		total := uint64(len(fs))
		rows = append(rows, HourlyPattern{
			EventHour:         k.hour,
			DayOfWeek:         k.weekday,
			TotalRequests:     total,
			UniqueUsers:       uint32(len(users)),
			UniqueIPs:         uint32(len(ips)),
			AvgResponseTimeMS: respSum / float64(total),
			ErrorRate:         ratio(errs, total),
			SuspiciousRate:    ratio(susp, total),
			BotRate:           ratio(bots, total),
			TopURLCategory:    categories.top(),
		})
	}

	slices.SortFunc(rows, func(a, b HourlyPattern) int {
		if c := cmp.Compare(a.DayOfWeek, b.DayOfWeek); c != 0 {
			return c
		}
		return cmp.Compare(a.EventHour, b.EventHour)
	})
	return rows
}
