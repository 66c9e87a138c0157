package communication

import "strings"

// ParseLinkHeader parses an RFC 8288 Link header into rel → url. Targets are
// read between their angle brackets, so commas inside a URL are kept.
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)

	rest := header
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			break
		}
		target := rest[start+1 : start+end]
		rest = rest[start+end+1:]

		params := rest
		if i := paramsEnd(rest); i >= 0 {
			params, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}

		for _, rel := range relations(params) {
			links[rel] = target
		}
	}

	return links
}

// paramsEnd finds the comma closing a link's parameter list, ignoring
// commas inside quoted values.
func paramsEnd(s string) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func relations(params string) []string {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		return strings.Fields(strings.Trim(strings.TrimSpace(value), `"`))
	}
	return nil
}
