package hashkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// reserved maps space and URI-reserved punctuation to their escapes.
// '%' comes first so already-produced escapes are not escaped twice.
var reserved = []struct{ char, escaped string }{
	{"%", "%25"},
	{"!", "%21"},
	{"#", "%23"},
	{"$", "%24"},
	{"&", "%26"},
	{"'", "%27"},
	{"(", "%28"},
	{")", "%29"},
	{"*", "%2A"},
	{"+", "%2B"},
	{",", "%2C"},
	{".", "%2E"},
	{"/", "%2F"},
	{":", "%3A"},
	{";", "%3B"},
	{"=", "%3D"},
	{"?", "%3F"},
	{"@", "%40"},
	{"[", "%5B"},
	{"]", "%5D"},
	{"<", "%3C"},
	{">", "%3E"},
	{"{", "%7B"},
	{"}", "%7D"},
	{"|", "%7C"},
	{"\\", "%5C"},
	{"^", "%5E"},
	{"~", "%7E"},
	{"`", "%60"},
	{" ", "%20"},
}

var (
	encoder *strings.Replacer
	decoder *strings.Replacer
)

func init() {
	enc := make([]string, 0, 2*len(reserved))
	dec := make([]string, 0, 2*len(reserved))
	for _, r := range reserved {
		enc = append(enc, r.char, r.escaped)
		dec = append(dec, r.escaped, r.char)
	}
	encoder = strings.NewReplacer(enc...)
	decoder = strings.NewReplacer(dec...)
}

// EncodeQuery escapes the fixed reserved character set. Other bytes,
// including non-ASCII UTF-8, pass through unchanged.
func EncodeQuery(s string) string {
	return encoder.Replace(s)
}

// DecodeQuery reverses EncodeQuery.
func DecodeQuery(s string) string {
	return decoder.Replace(s)
}
