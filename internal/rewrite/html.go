package rewrite

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var cspMarker = []byte("content-security-policy")

// stripMetaCSP removes <meta http-equiv="Content-Security-Policy"> elements (and
// the report-only variant) from an HTML document. The document is re-serialised
// only when such an element was found; otherwise body is returned as is.
func stripMetaCSP(body []byte) ([]byte, bool, error) {
	if !bytes.Contains(bytes.ToLower(body), cspMarker) {
		return body, false, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return body, false, err
	}

	metas := doc.Find("meta[http-equiv]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("http-equiv")
		for _, h := range cspHeaders {
			if strings.EqualFold(strings.TrimSpace(v), h) {
				return true
			}
		}
		return false
	})
	if metas.Length() == 0 {
		return body, false, nil
	}
	metas.Remove()

	html, err := doc.Html()
	if err != nil {
		return body, false, err
	}
	return []byte(html), true, nil
}
