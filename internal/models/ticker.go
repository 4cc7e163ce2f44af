package models

import (
	"regexp"
	"strings"

	"github.com/irfndi/stock-monitor/internal/utils"
)

// MaxTickerLength bounds a canonical ticker symbol.
const MaxTickerLength = 15

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

// NormalizeTicker trims and uppercases raw and validates it against the
// ticker pattern. Callers must reject the mutation on error.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" || len(ticker) > MaxTickerLength || !tickerPattern.MatchString(ticker) {
		return "", utils.InvalidTicker(raw)
	}
	return ticker, nil
}

// NormalizeTickers normalizes every entry and collapses duplicates while
// keeping first-seen order. The first invalid entry fails the whole list.
func NormalizeTickers(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		ticker, err := NormalizeTicker(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, ticker)
	}
	return out, nil
}
