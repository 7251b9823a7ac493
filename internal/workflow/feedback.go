package workflow

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var feedbackPolicy = bluemonday.UGCPolicy()

// Elements that carry content even without text.
var mediaTags = map[string]bool{
	"img":    true,
	"video":  true,
	"audio":  true,
	"iframe": true,
	"embed":  true,
	"object": true,
	"svg":    true,
	"canvas": true,
}

// SanitizeFeedback strips anything an editor should not be able to inject into an email.
func SanitizeFeedback(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(feedbackPolicy.Sanitize(s))
}

// IsEmptyMarkup reports whether markup renders to nothing: no visible text and no media.
// Editors submit "<p><br></p>" for an untouched field.
func IsEmptyMarkup(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return true
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				return false
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if mediaTags[string(name)] {
				return false
			}
		}
	}
}
