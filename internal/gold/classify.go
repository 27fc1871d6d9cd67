package gold

import "strings"

// Category is the coarse class of a URL path.
type Category string

// URL categories.
const (
	CategoryAuthentication Category = "authentication"
	CategoryAdmin          Category = "admin"
	CategoryOther          Category = "other"
)

// Classifier maps a URL path to its category. It must be pure.
type Classifier func(urlPath string) Category

// PrefixClassifier classifies by case-insensitive path prefix. Authentication
// prefixes are checked before admin prefixes.
func PrefixClassifier(authPrefixes, adminPrefixes []string) Classifier {
	auth := lowerAll(authPrefixes)
	admin := lowerAll(adminPrefixes)
	return func(urlPath string) Category {
		p := strings.ToLower(strings.TrimSpace(urlPath))
		if hasAnyPrefix(p, auth) {
			return CategoryAuthentication
		}
		if hasAnyPrefix(p, admin) {
			return CategoryAdmin
		}
		return CategoryOther
	}
}

// BotDetector reports whether a user agent belongs to an automated client.
type BotDetector func(userAgent string) bool

// MarkerDetector flags user agents containing any marker, ignoring case.
func MarkerDetector(markers []string) BotDetector {
	lower := lowerAll(markers)
	return func(userAgent string) bool {
		ua := strings.ToLower(userAgent)
		for _, m := range lower {
			if m != "" && strings.Contains(ua, m) {
				return true
			}
		}
		return false
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
