package gold

import "time"

// DailyTraffic is one row of gold.daily_traffic_metrics.
type DailyTraffic struct {
	EventDate         time.Time `parquet:"event_date"`
	TotalRequests     uint64    `parquet:"total_requests"`
	UniqueUsers       uint64    `parquet:"unique_users"`
	UniqueIPs         uint64    `parquet:"unique_ips"`
	TotalBytesSent    uint64    `parquet:"total_bytes_sent"`
	AvgResponseTimeMS float64   `parquet:"avg_response_time_ms"`
	P95ResponseTimeMS float64   `parquet:"p95_response_time_ms"`
	MaxResponseTimeMS uint32    `parquet:"max_response_time_ms"`
	ErrorCount        uint64    `parquet:"error_count"`
	ClientErrorCount  uint64    `parquet:"client_error_count"`
	ServerErrorCount  uint64    `parquet:"server_error_count"`
	ErrorRate         float64   `parquet:"error_rate"`
	SuspiciousCount   uint64    `parquet:"suspicious_count"`
	SuspiciousRate    float64   `parquet:"suspicious_rate"`
	BotRequests       uint64    `parquet:"bot_requests"`
	BotRate           float64   `parquet:"bot_rate"`
}

// Values follows schema.GoldDailyTraffic.
func (r DailyTraffic) Values() []any {
	return []any{
		r.EventDate, r.TotalRequests, r.UniqueUsers, r.UniqueIPs, r.TotalBytesSent,
		r.AvgResponseTimeMS, r.P95ResponseTimeMS, r.MaxResponseTimeMS,
		r.ErrorCount, r.ClientErrorCount, r.ServerErrorCount, r.ErrorRate,
		r.SuspiciousCount, r.SuspiciousRate, r.BotRequests, r.BotRate,
	}
}

// UserActivity is one row of gold.user_activity_metrics.
type UserActivity struct {
	UserID               string    `parquet:"user_id,dict"`
	Username             string    `parquet:"username,dict"`
	UserRole             string    `parquet:"user_role,dict"`
	UserCountry          string    `parquet:"user_country,dict"`
	IsPremium            uint8     `parquet:"is_premium"`
	TotalRequests        uint64    `parquet:"total_requests"`
	FirstActivity        time.Time `parquet:"first_activity"`
	LastActivity         time.Time `parquet:"last_activity"`
	DistinctDaysActive   uint32    `parquet:"distinct_days_active"`
	LoginAttempts        uint64    `parquet:"login_attempts"`
	FailedLogins         uint64    `parquet:"failed_logins"`
	LoginSuccessRate     float64   `parquet:"login_success_rate"`
	AvgResponseTimeMS    float64   `parquet:"avg_response_time_ms"`
	TotalBytesConsumed   uint64    `parquet:"total_bytes_consumed"`
	DistinctIPsUsed      uint32    `parquet:"distinct_ips_used"`
	DistinctURLsAccessed uint32    `parquet:"distinct_urls_accessed"`
	AdminAccessCount     uint64    `parquet:"admin_access_count"`
	ErrorCount           uint64    `parquet:"error_count"`
	SuspiciousEvents     uint64    `parquet:"suspicious_events"`
	OriginalRiskScore    float64   `parquet:"original_risk_score"`
	CombinedRiskScore    float64   `parquet:"combined_risk_score"`
}

// Values follows schema.GoldUserActivity.
func (r UserActivity) Values() []any {
	return []any{
		r.UserID, r.Username, r.UserRole, r.UserCountry, r.IsPremium,
		r.TotalRequests, r.FirstActivity, r.LastActivity, r.DistinctDaysActive,
		r.LoginAttempts, r.FailedLogins, r.LoginSuccessRate,
		r.AvgResponseTimeMS, r.TotalBytesConsumed,
		r.DistinctIPsUsed, r.DistinctURLsAccessed, r.AdminAccessCount,
		r.ErrorCount, r.SuspiciousEvents, r.OriginalRiskScore, r.CombinedRiskScore,
	}
}

// IPThreat is one row of gold.ip_threat_analysis.
type IPThreat struct {
	IPAddress             string    `parquet:"ip_address,dict"`
	IPRiskLevel           string    `parquet:"ip_risk_level,dict"`
	IPThreatType          string    `parquet:"ip_threat_type,dict"`
	IPSource              string    `parquet:"ip_source,dict"`
	TotalRequests         uint64    `parquet:"total_requests"`
	FirstSeen             time.Time `parquet:"first_seen"`
	LastSeen              time.Time `parquet:"last_seen"`
	DaysActive            uint32    `parquet:"days_active"`
	DistinctUsersAffected uint32    `parquet:"distinct_users_affected"`
	DistinctURLsAccessed  uint32    `parquet:"distinct_urls_accessed"`
	LoginAttempts         uint64    `parquet:"login_attempts"`
	FailedLogins          uint64    `parquet:"failed_logins"`
	AdminAccessAttempts   uint64    `parquet:"admin_access_attempts"`
	AuthFailures          uint64    `parquet:"auth_failures"`
	SuspiciousEvents      uint64    `parquet:"suspicious_events"`
	ErrorEvents           uint64    `parquet:"error_events"`
	ThreatScore           float64   `parquet:"threat_score"`
}

// Values follows schema.GoldIPThreat.
func (r IPThreat) Values() []any {
	return []any{
		r.IPAddress, r.IPRiskLevel, r.IPThreatType, r.IPSource,
		r.TotalRequests, r.FirstSeen, r.LastSeen, r.DaysActive,
		r.DistinctUsersAffected, r.DistinctURLsAccessed,
		r.LoginAttempts, r.FailedLogins, r.AdminAccessAttempts, r.AuthFailures,
		r.SuspiciousEvents, r.ErrorEvents, r.ThreatScore,
	}
}

// SecuritySummary is one row of gold.security_summary.
type SecuritySummary struct {
	SummaryDate                time.Time `parquet:"summary_date"`
	TotalEvents                uint64    `parquet:"total_events"`
	HighRiskEvents             uint64    `parquet:"high_risk_events"`
	TotalUniqueIPs             uint32    `parquet:"total_unique_ips"`
	CriticalIPsActive          uint32    `parquet:"critical_ips_active"`
	HighRiskIPsActive          uint32    `parquet:"high_risk_ips_active"`
	BruteForceAttempts         uint64    `parquet:"brute_force_attempts"`
	CredentialStuffingAttempts uint64    `parquet:"credential_stuffing_attempts"`
	SuspiciousLogins           uint64    `parquet:"suspicious_logins"`
	TotalUsersActive           uint32    `parquet:"total_users_active"`
	PremiumUsersAffected       uint32    `parquet:"premium_users_affected"`
	AdminAccountsTargeted      uint32    `parquet:"admin_accounts_targeted"`
	AvgThreatScore             float64   `parquet:"avg_threat_score"`
	MaxThreatScore             float64   `parquet:"max_threat_score"`
	TopThreatType              string    `parquet:"top_threat_type,dict"`
}

// Values follows schema.GoldSecuritySummary.
func (r SecuritySummary) Values() []any {
	return []any{
		r.SummaryDate, r.TotalEvents, r.HighRiskEvents,
		r.TotalUniqueIPs, r.CriticalIPsActive, r.HighRiskIPsActive,
		r.BruteForceAttempts, r.CredentialStuffingAttempts, r.SuspiciousLogins,
		r.TotalUsersActive, r.PremiumUsersAffected, r.AdminAccountsTargeted,
		r.AvgThreatScore, r.MaxThreatScore, r.TopThreatType,
	}
}

// HourlyPattern is one row of gold.hourly_patterns.
type HourlyPattern struct {
	EventHour         uint8   `parquet:"event_hour"`
	DayOfWeek         uint8   `parquet:"day_of_week"`
	TotalRequests     uint64  `parquet:"total_requests"`
	UniqueUsers       uint32  `parquet:"unique_users"`
	UniqueIPs         uint32  `parquet:"unique_ips"`
	AvgResponseTimeMS float64 `parquet:"avg_response_time_ms"`
	ErrorRate         float64 `parquet:"error_rate"`
	SuspiciousRate    float64 `parquet:"suspicious_rate"`
	BotRate           float64 `parquet:"bot_rate"`
	TopURLCategory    string  `parquet:"top_url_category,dict"`
}

// Values follows schema.GoldHourlyPatterns.
func (r HourlyPattern) Values() []any {
	return []any{
		r.EventHour, r.DayOfWeek, r.TotalRequests, r.UniqueUsers, r.UniqueIPs,
		r.AvgResponseTimeMS, r.ErrorRate, r.SuspiciousRate, r.BotRate, r.TopURLCategory,
	}
}
