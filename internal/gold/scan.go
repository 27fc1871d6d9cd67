package gold

import (
	"context"

	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

func scanDailyTraffic(row warehouse.Scanner) (DailyTraffic, error) {
	var r DailyTraffic
	err := row.Scan(
		&r.EventDate, &r.TotalRequests, &r.UniqueUsers, &r.UniqueIPs, &r.TotalBytesSent,
		&r.AvgResponseTimeMS, &r.P95ResponseTimeMS, &r.MaxResponseTimeMS,
		&r.ErrorCount, &r.ClientErrorCount, &r.ServerErrorCount, &r.ErrorRate,
		&r.SuspiciousCount, &r.SuspiciousRate, &r.BotRequests, &r.BotRate,
	)
	r.EventDate = r.EventDate.UTC()
	return r, err
}

func scanUserActivity(row warehouse.Scanner) (UserActivity, error) {
	var r UserActivity
	err := row.Scan(
		&r.UserID, &r.Username, &r.UserRole, &r.UserCountry, &r.IsPremium,
		&r.TotalRequests, &r.FirstActivity, &r.LastActivity, &r.DistinctDaysActive,
		&r.LoginAttempts, &r.FailedLogins, &r.LoginSuccessRate,
		&r.AvgResponseTimeMS, &r.TotalBytesConsumed,
		&r.DistinctIPsUsed, &r.DistinctURLsAccessed, &r.AdminAccessCount,
		&r.ErrorCount, &r.SuspiciousEvents, &r.OriginalRiskScore, &r.CombinedRiskScore,
	)
	r.FirstActivity = r.FirstActivity.UTC()
	r.LastActivity = r.LastActivity.UTC()
	return r, err
}

func scanIPThreat(row warehouse.Scanner) (IPThreat, error) {
	var r IPThreat
	err := row.Scan(
		&r.IPAddress, &r.IPRiskLevel, &r.IPThreatType, &r.IPSource,
		&r.TotalRequests, &r.FirstSeen, &r.LastSeen, &r.DaysActive,
		&r.DistinctUsersAffected, &r.DistinctURLsAccessed,
		&r.LoginAttempts, &r.FailedLogins, &r.AdminAccessAttempts, &r.AuthFailures,
		&r.SuspiciousEvents, &r.ErrorEvents, &r.ThreatScore,
	)
	r.FirstSeen = r.FirstSeen.UTC()
	r.LastSeen = r.LastSeen.UTC()
	return r, err
}

func scanSecuritySummary(row warehouse.Scanner) (SecuritySummary, error) {
	var r SecuritySummary
	err := row.Scan(
		&r.SummaryDate, &r.TotalEvents, &r.HighRiskEvents,
		&r.TotalUniqueIPs, &r.CriticalIPsActive, &r.HighRiskIPsActive,
		&r.BruteForceAttempts, &r.CredentialStuffingAttempts, &r.SuspiciousLogins,
		&r.TotalUsersActive, &r.PremiumUsersAffected, &r.AdminAccountsTargeted,
		&r.AvgThreatScore, &r.MaxThreatScore, &r.TopThreatType,
	)
	r.SummaryDate = r.SummaryDate.UTC()
	return r, err
}

func scanHourlyPattern(row warehouse.Scanner) (HourlyPattern, error) {
	var r HourlyPattern
	err := row.Scan(
		&r.EventHour, &r.DayOfWeek, &r.TotalRequests, &r.UniqueUsers, &r.UniqueIPs,
		&r.AvgResponseTimeMS, &r.ErrorRate, &r.SuspiciousRate, &r.BotRate, &r.TopURLCategory,
	)
	return r, err
}

func selectAll[T any](ctx context.Context, store warehouse.Store, t schema.Table, scan func(warehouse.Scanner) (T, error)) ([]T, error) {
	var rows []T
	err := store.Select(ctx, t, func(row warehouse.Scanner) error {
		r, err := scan(row)
		if err != nil {
			return err
		}
		rows = append(rows, r)
		return nil
	})
	return rows, err
}

// Read loads the committed Gold tables, each in its table order.
func Read(ctx context.Context, store warehouse.Store) (*Tables, error) {
	for _, t := range schema.Gold() {
		cols, err := store.Columns(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		if err := schema.RequireTable(t, cols); err != nil {
			return nil, err
		}
	}

	var (
		out Tables
		err error
	)
	if out.DailyTraffic, err = selectAll(ctx, store, schema.GoldDailyTraffic, scanDailyTraffic); err != nil {
		return nil, err
	}
	if out.UserActivity, err = selectAll(ctx, store, schema.GoldUserActivity, scanUserActivity); err != nil {
		return nil, err
	}
	if out.IPThreat, err = selectAll(ctx, store, schema.GoldIPThreat, scanIPThreat); err != nil {
		return nil, err
	}
	if out.SecuritySummary, err = selectAll(ctx, store, schema.GoldSecuritySummary, scanSecuritySummary); err != nil {
		return nil, err
	}
	if out.HourlyPatterns, err = selectAll(ctx, store, schema.GoldHourlyPatterns, scanHourlyPattern); err != nil {
		return nil, err
	}
	return &out, nil
}
