// Package domainmatch normalizes and compares domains, returning a graded
// match with a confidence score.
package domainmatch

import (
	"net/url"
	"strings"
)

type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchNormalized MatchType = "normalized"
	MatchMainDomain MatchType = "main_domain"
	MatchSubdomain  MatchType = "subdomain"
	MatchPartial    MatchType = "partial"
	MatchNone       MatchType = "none"
)

type Result struct {
	Matched     bool
	Type        MatchType
	Confidence  int
	NormalizedA string
	NormalizedB string
}

var mobilePrefixes = []string{"www", "m", "mobile"}

// Normalize reduces a free-form domain or URL to a bare lower-case host:
// scheme, www/mobile prefixes, port, path, query, fragment and trailing dots
// are all stripped.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	// drop path, query, fragment
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	// drop port
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.ToLower(s)

	labels := strings.Split(s, ".")
	for len(labels) > 2 {
		if isMobilePrefix(labels[0]) {
			labels = labels[1:]
			continue
		}
		break
	}
	return strings.Join(labels, ".")
}

func isMobilePrefix(label string) bool {
	for _, p := range mobilePrefixes {
		if label == p {
			return true
		}
	}
	// www2, www3, ...
	if strings.HasPrefix(label, "www") {
		rest := label[3:]
		if rest != "" {
			for _, r := range rest {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		}
	}
	return false
}

// ExtractDomain pulls the normalized host out of a result link. Malformed
// URLs never fail the caller; they yield "".
func ExtractDomain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return Normalize(u.Host)
}

// singularize tolerates plural/singular variants: ies→y, then es, then s.
func singularize(label string) string {
	switch {
	case strings.HasSuffix(label, "ies") && len(label) > 3:
		return label[:len(label)-3] + "y"
	case strings.HasSuffix(label, "es") && len(label) > 2:
		return label[:len(label)-2]
	case strings.HasSuffix(label, "s") && len(label) > 1:
		return label[:len(label)-1]
	default:
		return label
	}
}

func singularizeDomain(d string) string {
	labels := strings.Split(d, ".")
	for i, l := range labels {
		labels[i] = singularize(l)
	}
	return strings.Join(labels, ".")
}

func lastTwoLabels(d string) string {
	labels := strings.Split(d, ".")
	if len(labels) <= 2 {
		return d
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// Match grades how well two domains refer to the same site. First hit on the
// ladder wins.
func Match(a, b string) Result {
	normA := Normalize(a)
	normB := Normalize(b)
	res := Result{Type: MatchNone, NormalizedA: normA, NormalizedB: normB}

	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return res
	}

	if a == b {
		res.Matched = true
		res.Type = MatchExact
		res.Confidence = 100
		return res
	}

	if normA == "" || normB == "" {
		return res
	}

	if normA == normB {
		res.Matched = true
		res.Type = MatchNormalized
		res.Confidence = 95
		return res
	}

	singA, singB := singularizeDomain(normA), singularizeDomain(normB)
	if singA == singB {
		res.Matched = true
		res.Type = MatchNormalized
		res.Confidence = 93
		return res
	}

	if lastTwoLabels(normA) == lastTwoLabels(normB) {
		res.Matched = true
		if strings.HasSuffix(normA, "."+normB) || strings.HasSuffix(normB, "."+normA) {
			res.Type = MatchSubdomain
			res.Confidence = 85
		} else {
			res.Type = MatchMainDomain
			res.Confidence = 90
		}
		return res
	}

	if strings.Contains(normA, normB) || strings.Contains(normB, normA) {
		res.Matched = true
		res.Type = MatchSubdomain
		res.Confidence = 75
		return res
	}

	return res
}
