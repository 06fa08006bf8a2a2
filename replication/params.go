package replication

import (
	"net/url"
	"slices"
	"strings"
)

// Params is an ordered mapping of parameter names to values. A value
// is a string, a []string or a nested *Params.
//
// Bracketed names are expanded like the form parsers of common web
// frameworks do: "a[b][c]=x" nests, "a[]=x" appends to a list.
type Params struct {
	keys   []string
	values map[string]any
}

func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Len returns the number of top level names.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the top level names in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

// Get returns the value at the top level name.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// String returns the string value at key, empty if key is missing or
// holds a list or mapping.
func (p *Params) String(key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

// Set sets a top level value. An existing name keeps its position.
func (p *Params) Set(key string, value any) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := NewParams()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		switch v := p.values[k].(type) {
		case *Params:
			c.Set(k, v.Clone())
		case []string:
			c.Set(k, slices.Clone(v))
		default:
			c.Set(k, v)
		}
	}
	return c
}

// Merge sets every top level value of o, replacing existing ones.
func (p *Params) Merge(o *Params) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		p.Set(k, o.values[k])
	}
}

// Add adds a value under a possibly bracketed name. Names with
// unbalanced brackets or a non terminal "[]" are kept verbatim as flat
// names.
func (p *Params) Add(name, value string) {
	segments, ok := splitName(name)
	if !ok {
		p.Set(name, value)
		return
	}
	p.add(segments, value)
}

func (p *Params) add(segments []string, value string) {
	key := segments[0]
	rest := segments[1:]

	switch {
	case len(rest) == 0:
		p.Set(key, value)
	case len(rest) == 1 && rest[0] == "":
		list, _ := p.values[key].([]string)
		p.Set(key, append(list, value))
	default:
		child, ok := p.values[key].(*Params)
		if !ok {
			child = NewParams()
			p.Set(key, child)
		}
		child.add(rest, value)
	}
}

// splitName splits "a[b][]" into ["a", "b", ""].
func splitName(name string) ([]string, bool) {
	i := strings.IndexByte(name, '[')
	if i < 0 {
		return []string{name}, true
	}
	if i == 0 {
		return nil, false
	}

	segments := []string{name[:i]}
	rest := name[i:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false
		}
		seg := rest[1:end]
		if strings.IndexByte(seg, '[') >= 0 {
			return nil, false
		}
		segments = append(segments, seg)
		rest = rest[end+1:]
	}

	for i, s := range segments[1:] {
		if s == "" && i != len(segments)-2 {
			return nil, false
		}
	}

	return segments, true
}

// ParseParams parses an urlencoded query or form body keeping the
// order of first appearance. Malformed pairs are skipped.
func ParseParams(raw string) *Params {
	p := NewParams()
	for pair := range strings.SplitSeq(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil || name == "" {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		p.Add(name, value)
	}
	return p
}

var bracketUnescaper = strings.NewReplacer("%5B", "[", "%5D", "]")

func escapeName(name string) string {
	return bracketUnescaper.Replace(url.QueryEscape(name))
}

// Encode returns the application/x-www-form-urlencoded form in
// insertion order, nested names bracketed.
func (p *Params) Encode() string {
	var b strings.Builder
	p.encode(&b, "")
	return b.String()
}

func (p *Params) encode(b *strings.Builder, prefix string) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}

		switch v := p.values[k].(type) {
		case *Params:
			v.encode(b, name)
		case []string:
			for _, s := range v {
				writePair(b, name+"[]", s)
			}
		case string:
			writePair(b, name, v)
		}
	}
}

func writePair(b *strings.Builder, name, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(escapeName(name))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}
