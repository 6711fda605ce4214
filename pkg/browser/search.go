package browser

import "strings"

// SearchText scans text for a pattern and returns each match with up to 50
// characters of surrounding context. Matching is plain substring search,
// case-insensitive unless opts.CaseSensitive is set. Empty patterns match
// nothing.
func SearchText(text string, opts SearchOptions) []SearchResult {
	if opts.Pattern == "" {
		return nil
	}

	pattern := opts.Pattern
	if !opts.CaseSensitive {
		text = strings.ToLower(text)
		pattern = strings.ToLower(pattern)
	}

	var results []SearchResult
	index := 0
	for {
		pos := strings.Index(text[index:], pattern)
		if pos == -1 {
			break
		}
		at := index + pos

		start := max(0, at-50)
		end := min(len(text), at+len(pattern)+50)
		results = append(results, SearchResult{
			Text:    text[at : at+len(pattern)],
			Context: text[start:end],
		})

		index = at + len(pattern)
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			break
		}
	}
	return results
}
