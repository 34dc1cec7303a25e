package service

import (
	"math"
	"strings"
)

// textIntersects reports whether two phrases overlap: after lowercasing and
// trimming, either one contains the other. Empty phrases never intersect.
func textIntersects(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// anyIntersects reports whether phrase intersects any entry of list.
func anyIntersects(phrase string, list []string) bool {
	for _, item := range list {
		if textIntersects(phrase, item) {
			return true
		}
	}
	return false
}

// containsFold reports whether text contains the keyword, case-insensitively.
func containsFold(text, keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), keyword)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
