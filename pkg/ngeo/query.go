package ngeo

import (
	"net/url"
	"strings"
)

// param is one query parameter. Parameters are consumed by the family that handles
// them; whatever is left at the end is reported back.
type param struct {
	name  string
	value string
	used  bool
}

// query keeps parameters in URL order so every pass over them is deterministic.
type query struct {
	params []*param
}

func parseQuery(raw string) *query {
	q := &query{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		q.params = append(q.params, &param{name: unescape(name), value: unescape(value)})
	}
	return q
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// peek returns the value of the first unused parameter called name.
func (q *query) peek(name string) (string, bool) {
	for _, p := range q.params {
		if !p.used && p.name == name {
			return p.value, true
		}
	}
	return "", false
}

// take consumes the first unused parameter called name.
func (q *query) take(name string) (string, bool) {
	for _, p := range q.params {
		if !p.used && p.name == name {
			p.used = true
			return p.value, true
		}
	}
	return "", false
}

// takeAll consumes every unused parameter called name, in URL order.
func (q *query) takeAll(name string) []string {
	var values []string
	for _, p := range q.params {
		if !p.used && p.name == name {
			p.used = true
			values = append(values, p.value)
		}
	}
	return values
}

// takeMatching consumes every unused parameter accepted by match, in URL order.
func (q *query) takeMatching(match func(name string) bool) []param {
	var out []param
	for _, p := range q.params {
		if !p.used && match(p.name) {
			p.used = true
			out = append(out, *p)
		}
	}
	return out
}

// takePrefix consumes every unused parameter whose name starts with prefix.
func (q *query) takePrefix(prefix string) []param {
	return q.takeMatching(func(name string) bool {
		return strings.HasPrefix(name, prefix) && len(name) > len(prefix)
	})
}

// remaining returns the unused parameters as name=value fragments.
func (q *query) remaining() []string {
	var out []string
	for _, p := range q.params {
		if !p.used {
			out = append(out, fragment(p.name, p.value))
		}
	}
	return out
}

func fragment(name, value string) string {
	return name + "=" + value
}
