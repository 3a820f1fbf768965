package rewrite

import (
	"errors"
	"mime"
	"regexp"
	"strings"

	"path-proxy-go/internal/model"
)

// insecureAttrPattern matches src/href attributes still pointing at plain http.
var insecureAttrPattern = regexp.MustCompile(`(?i)\b(src|href)="http:`)

// textualTypes are non-text/* media types whose bodies are rewritten.
var textualTypes = map[string]bool{
	"application/json":                  true,
	"application/javascript":            true,
	"application/x-javascript":          true,
	"application/ecmascript":            true,
	"application/xml":                   true,
	"application/x-www-form-urlencoded": true,
}

// IsTextual reports whether a body of the given Content-Type is eligible for rewriting.
// A missing or malformed Content-Type is treated as binary.
func IsTextual(contentType string) bool {
	mt := mediaType(contentType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case strings.HasSuffix(mt, "+json"), strings.HasSuffix(mt, "+xml"):
		return true
	}
	return textualTypes[mt]
}

func isHTML(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// mediaType returns the lower-cased media type of a Content-Type value, or ""
// when it cannot be parsed. Malformed parameters do not hide the type.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return ""
	}
	return mt
}

// originPattern matches an absolute http(s) URL for domain. The host must end at
// a character that cannot continue a hostname, so github.com does not match
// github.community or github.com.evil.net. That character is captured so it
// can be written back.
func originPattern(domain string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)https?://` + regexp.QuoteMeta(domain) + `([^A-Za-z0-9.\-]|$)`)
}

// Body rewrites absolute URLs for domain to their proxied form and upgrades
// plain-http src/href attributes. Applying it to its own output changes nothing.
func Body(body []byte, domain string, pc model.ProxyContext) []byte {
	repl := strings.ReplaceAll(pc.BaseURL(), "$", "$$") + "${1}"
	out := originPattern(domain).ReplaceAll(body, []byte(repl))
	return insecureAttrPattern.ReplaceAll(out, []byte(`${1}="https:`))
}
