package schema

// SeqColumn stamps each Bronze row with its load order. Dimension lookups use
// it to resolve duplicate keys deterministically (the last load wins).
const SeqColumn = "_seq"

// =============================================================================
// Bronze
// =============================================================================

// BronzeEvents mirrors the raw web log CSV. Every value is text.
var BronzeEvents = Table{
	Name:  "bronze.logs_web",
	Layer: LayerBronze,
	Columns: []Column{
		{SeqColumn, UInt64},
		{"event_id", String},
		{"event_ts", String},
		{"user_id", String},
		{"ip_address", String},
		{"http_method", String},
		{"url_path", String},
		{"status_code", String},
		{"bytes_sent", String},
		{"response_time_ms", String},
		{"user_agent", String},
		{"is_suspicious", String},
	},
	OrderBy: []string{SeqColumn},
}

// BronzeUsers is the user dimension, keyed by _id.
var BronzeUsers = Table{
	Name:  "bronze.users",
	Layer: LayerBronze,
	Columns: []Column{
		{SeqColumn, UInt64},
		{"_id", String},
		{"username", String},
		{"email", String},
		{"role", String},
		{"country", String},
		{"created_at", String},
		{"is_premium", String},
		{"risk_score", String},
	},
	OrderBy: []string{SeqColumn},
}

// BronzeIPReputation is the IP reputation dimension, keyed by ip.
var BronzeIPReputation = Table{
	Name:  "bronze.ip_reputation",
	Layer: LayerBronze,
	Columns: []Column{
		{SeqColumn, UInt64},
		{"ip", String},
		{"source", String},
		{"risk_level", String},
		{"threat_type", String},
		{"last_seen", String},
	},
	OrderBy: []string{SeqColumn},
}

// =============================================================================
// Silver
// =============================================================================

// SilverEvents is the enriched fact table: one row per Bronze event.
var SilverEvents = Table{
	Name:  "silver.logs_enriched",
	Layer: LayerSilver,
	Columns: []Column{
		{"event_id", String},
		{"event_ts", DateTime},
		{"user_id", String},
		{"username", String},
		{"email", String},
		{"role", String},
		{"country", String},
		{"created_at", DateTime},
		{"is_premium", UInt8},
		{"risk_score", Float32},
		{"ip_address", String},
		{"ip_risk_level", String},
		{"ip_threat_type", String},
		{"ip_source", String},
		{"http_method", String},
		{"url_path", String},
		{"status_code", Int32},
		{"status_class", String},
		{"bytes_sent", UInt64},
		{"response_time_ms", UInt32},
		{"user_agent", String},
		{"is_suspicious_raw", UInt8},
		{"is_suspicious_calc", UInt8},
	},
	OrderBy: []string{"event_ts", "event_id"},
}

// =============================================================================
// Gold
// =============================================================================

// GoldDailyTraffic holds per-day traffic volume and quality.
var GoldDailyTraffic = Table{
	Name:  "gold.daily_traffic_metrics",
	Layer: LayerGold,
	Columns: []Column{
		{"event_date", Date},
		{"total_requests", UInt64},
		{"unique_users", UInt64},
		{"unique_ips", UInt64},
		{"total_bytes_sent", UInt64},
		{"avg_response_time_ms", Float64},
		{"p95_response_time_ms", Float64},
		{"max_response_time_ms", UInt32},
		{"error_count", UInt64},
		{"client_error_count", UInt64},
		{"server_error_count", UInt64},
		{"error_rate", Float64},
		{"suspicious_count", UInt64},
		{"suspicious_rate", Float64},
		{"bot_requests", UInt64},
		{"bot_rate", Float64},
	},
	OrderBy: []string{"event_date"},
}

// GoldUserActivity holds per-user behaviour and the combined risk score.
var GoldUserActivity = Table{
	Name:  "gold.user_activity_metrics",
	Layer: LayerGold,
	Columns: []Column{
		{"user_id", String},
		{"username", String},
		{"user_role", String},
		{"user_country", String},
		{"is_premium", UInt8},
		{"total_requests", UInt64},
		{"first_activity", DateTime},
		{"last_activity", DateTime},
		{"distinct_days_active", UInt32},
		{"login_attempts", UInt64},
		{"failed_logins", UInt64},
		{"login_success_rate", Float64},
		{"avg_response_time_ms", Float64},
		{"total_bytes_consumed", UInt64},
		{"distinct_ips_used", UInt32},
		{"distinct_urls_accessed", UInt32},
		{"admin_access_count", UInt64},
		{"error_count", UInt64},
		{"suspicious_events", UInt64},
		{"original_risk_score", Float64},
		{"combined_risk_score", Float64},
	},
	OrderBy: []string{"-combined_risk_score", "user_id"},
}

// GoldIPThreat holds per-IP activity and the threat score.
var GoldIPThreat = Table{
	Name:  "gold.ip_threat_analysis",
	Layer: LayerGold,
	Columns: []Column{
		{"ip_address", String},
		{"ip_risk_level", String},
		{"ip_threat_type", String},
		{"ip_source", String},
		{"total_requests", UInt64},
		{"first_seen", DateTime},
		{"last_seen", DateTime},
		{"days_active", UInt32},
		{"distinct_users_affected", UInt32},
		{"distinct_urls_accessed", UInt32},
		{"login_attempts", UInt64},
		{"failed_logins", UInt64},
		{"admin_access_attempts", UInt64},
		{"auth_failures", UInt64},
		{"suspicious_events", UInt64},
		{"error_events", UInt64},
		{"threat_score", Float64},
	},
	OrderBy: []string{"-threat_score", "ip_address"},
}

// GoldSecuritySummary holds the per-day security rollup.
var GoldSecuritySummary = Table{
	Name:  "gold.security_summary",
	Layer: LayerGold,
	Columns: []Column{
		{"summary_date", Date},
		{"total_events", UInt64},
		{"high_risk_events", UInt64},
		{"total_unique_ips", UInt32},
		{"critical_ips_active", UInt32},
		{"high_risk_ips_active", UInt32},
		{"brute_force_attempts", UInt64},
		{"credential_stuffing_attempts", UInt64},
		{"suspicious_logins", UInt64},
		{"total_users_active", UInt32},
		{"premium_users_affected", UInt32},
		{"admin_accounts_targeted", UInt32},
		{"avg_threat_score", Float64},
		{"max_threat_score", Float64},
		{"top_threat_type", String},
	},
	OrderBy: []string{"summary_date"},
}

// GoldHourlyPatterns holds traffic shape by hour of day and ISO weekday.
var GoldHourlyPatterns = Table{
	Name:  "gold.hourly_patterns",
	Layer: LayerGold,
	Columns: []Column{
		{"event_hour", UInt8},
		{"day_of_week", UInt8},
		{"total_requests", UInt64},
		{"unique_users", UInt32},
		{"unique_ips", UInt32},
		{"avg_response_time_ms", Float64},
		{"error_rate", Float64},
		{"suspicious_rate", Float64},
		{"bot_rate", Float64},
		{"top_url_category", String},
	},
	OrderBy: []string{"day_of_week", "event_hour"},
}

// =============================================================================
// Groups
// =============================================================================

// Bronze returns the Bronze tables.
func Bronze() []Table {
	return []Table{BronzeEvents, BronzeUsers, BronzeIPReputation}
}

// Silver returns the Silver tables.
func Silver() []Table {
	return []Table{SilverEvents}
}

// Gold returns the Gold tables in a fixed order.
func Gold() []Table {
	return []Table{
		GoldDailyTraffic,
		GoldUserActivity,
		GoldIPThreat,
		GoldSecuritySummary,
		GoldHourlyPatterns,
	}
}

// All returns every table, Bronze first.
func All() []Table {
	all := append(Bronze(), Silver()...)
	return append(all, Gold()...)
}

// Lookup finds a table by qualified name. A bare gold table name such as
// "hourly_patterns" also matches.
func Lookup(name string) (Table, bool) {
	for _, t := range All() {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range Gold() {
		if t.Short() == name {
			return t, true
		}
	}
	return Table{}, false
}
