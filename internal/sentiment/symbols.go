package sentiment

import (
	"regexp"
	"sort"
	"strings"
)

var cashtagRx = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)

// companyNames maps tracked tickers to their legal names.
var companyNames = map[string]string{
	"AAPL":  "Apple Inc.",
	"MSFT":  "Microsoft Corporation",
	"NVDA":  "NVIDIA Corporation",
	"AMZN":  "Amazon.com Inc.",
	"GOOGL": "Alphabet Inc.",
	"META":  "Meta Platforms Inc.",
	"TSLA":  "Tesla Inc.",
	"AMD":   "Advanced Micro Devices Inc.",
	"NFLX":  "Netflix Inc.",
	"SPY":   "SPDR S&P 500 ETF Trust",
}

var symbolAlias = map[string][]string{
	"AAPL":  {"apple", "iphone"},
	"MSFT":  {"microsoft", "azure"},
	"NVDA":  {"nvidia"},
	"AMZN":  {"amazon", "aws"},
	"GOOGL": {"alphabet", "google"},
	"META":  {"facebook", "instagram", "meta platforms"},
	"TSLA":  {"tesla"},
	"AMD":   {"advanced micro devices"},
	"NFLX":  {"netflix"},
	"SPY":   {"s&p 500", "s&p500"},
}

// aliasRx holds one whole-word, case-insensitive matcher per alias.
var aliasRx = compileAliases(symbolAlias)

func compileAliases(aliases map[string][]string) map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(aliases))
	for symbol, names := range aliases {
		for _, name := range names {
			out[symbol] = append(out[symbol], regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
		}
	}
	return out
}

// ExtractSymbols finds the symbols a text refers to: any cashtag, plus
// tracked companies mentioned by name.
func ExtractSymbols(text string) []string {
	matched := make(map[string]struct{}, 4)
	for _, m := range cashtagRx.FindAllStringSubmatch(text, -1) {
		matched[strings.ToUpper(m[1])] = struct{}{}
	}
	for symbol, patterns := range aliasRx {
		for _, rx := range patterns {
			if rx.MatchString(text) {
				matched[symbol] = struct{}{}
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	out := make([]string, 0, len(matched))
	for s := range matched {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// normalizeSymbols upper-cases, trims and dedups explicit symbols, falling
// back to extraction from text when none are given.
func normalizeSymbols(explicit []string, text string) []string {
	if len(explicit) == 0 {
		return ExtractSymbols(text)
	}
	seen := make(map[string]struct{}, len(explicit))
	out := make([]string, 0, len(explicit))
	for _, s := range explicit {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Entities lists the symbol, its company name and cashtag, then other
// tracked symbols co-mentioned in texts.
func Entities(symbol string, texts []string) []string {
	out := []string{symbol}
	if name, ok := companyNames[symbol]; ok {
		out = append(out, name)
	}
	out = append(out, "$"+symbol)

	related := make(map[string]struct{})
	for _, t := range texts {
		for _, s := range ExtractSymbols(t) {
			if s == symbol {
				continue
			}
			if _, ok := companyNames[s]; ok {
				related[s] = struct{}{}
			}
		}
	}
	extra := make([]string, 0, len(related))
	for s := range related {
		extra = append(extra, s)
	}
	sort.Strings(extra)
	return append(out, extra...)
}
