package hashkey

import (
	"strings"
)

type param struct {
	key   string
	value string
}

// Params is an insertion-ordered query parameter list. The encoded form is
// exactly the byte sequence that gets signed and transmitted.
type Params struct {
	items []param
}

// NewParams returns an empty parameter list.
func NewParams() *Params {
	return &Params{}
}

// Add appends a trusted token (symbol, enum, decimal, id) verbatim.
func (p *Params) Add(key, value string) *Params {
	p.items = append(p.items, param{key: key, value: value})
	return p
}

// AddEscaped appends a free-text value escaped with EncodeQuery.
func (p *Params) AddEscaped(key, value string) *Params {
	return p.Add(key, EncodeQuery(value))
}

// Get returns the stored (possibly escaped) value for key.
func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, it := range p.items {
		if it.key == key {
			return it.value, true
		}
	}
	return "", false
}

// Len reports the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := &Params{}
	if p != nil {
		out.items = append(out.items, p.items...)
	}
	return out
}

// Encode joins the parameters as k=v pairs in insertion order.
func (p *Params) Encode() string {
	if p == nil || len(p.items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, it := range p.items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(it.key)
		b.WriteByte('=')
		b.WriteString(it.value)
	}
	return b.String()
}

// ParseParams splits a raw query string and decodes each value with DecodeQuery.
func ParseParams(raw string) *Params {
	p := NewParams()
	if raw == "" {
		return p
	}
	for _, pair := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(pair, "=")
		p.Add(k, DecodeQuery(v))
	}
	return p
}
