package pkg

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// pattern is a compiled path-style identifier such as "/users/:id" or
// "/files/*". Matching is case-insensitive and accepts one trailing slash.
type pattern struct {
	re   *regexp.Regexp
	keys []string
}

func isParamChar(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

// compilePattern translates an identifier into a regular expression.
//
//	:name   one segment, captured as name
//	:name?  optional segment
//	*       anything, captured as "0", "1", ...
//
// Any other character is literal, so an identifier without markers only
// matches itself.
func compilePattern(source string) *pattern {
	p := &pattern{}

	// The trailing slash is optional on both sides.
	src := strings.TrimSuffix(source, "/")

	var b strings.Builder
	b.WriteString("(?i)^")

	wildcards := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == ':' && i+1 < len(src) && isParamChar(src[i+1]):
			j := i + 1
			for j < len(src) && isParamChar(src[j]) {
				j++
			}
			p.keys = append(p.keys, src[i+1:j])

			if j < len(src) && src[j] == '?' {
				// Fold the preceding slash into the optional group so
				// "/a/:b?" matches "/a" as well as "/a/x".
				re := b.String()
				if strings.HasSuffix(re, "/") {
					b.Reset()
					b.WriteString(strings.TrimSuffix(re, "/"))
					b.WriteString(`(?:/([^/]+?))?`)
				} else {
					b.WriteString(`([^/]+?)?`)
				}
				j++
			} else {
				b.WriteString(`([^/]+?)`)
			}
			i = j - 1
		case c == '*':
			p.keys = append(p.keys, strconv.Itoa(wildcards))
			wildcards++
			b.WriteString(`(.*)`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`/?$`)

	p.re = regexp.MustCompile(b.String())
	return p
}

// match reports whether identifier matches and returns the captured
// variables. The map is never nil on a match.
func (p *pattern) match(identifier string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(identifier)
	if m == nil {
		return nil, false
	}

	params := make(map[string]string, len(p.keys))
	for i, key := range p.keys {
		v := m[i+1]
		if v == "" {
			continue
		}
		if decoded, err := url.PathUnescape(v); err == nil {
			v = decoded
		}
		params[key] = v
	}
	return params, true
}
