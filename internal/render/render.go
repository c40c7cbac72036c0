// Package render turns post bodies written in markdown into sanitized HTML.
package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// allowedElements is everything a rendered post may contain.
var allowedElements = []string{"p", "a", "strong", "li", "em", "ol", "ul", "h1", "h2", "h3"}

// Renderer converts markdown to HTML restricted to allowedElements.
// It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New returns a Renderer.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Linkify,
			extension.Strikethrough,
		),
		goldmark.WithRendererOptions(
			// Raw HTML is passed through and cleaned by the policy below.
			html.WithUnsafe(),
		),
	)

	policy := bluemonday.NewPolicy()
	policy.AllowElements(allowedElements...)
	policy.AllowAttrs("href", "title").OnElements("a")
	policy.AllowStandardURLs()
	policy.RequireNoFollowOnLinks(false)

	return &Renderer{md: md, policy: policy}
}

// Markdown renders src and strips every element that is not allowed.
func (r *Renderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return r.policy.Sanitize(buf.String()), nil
}

// FirstParagraph returns html up to and including the first closing </p>.
// HTML without a paragraph is returned unchanged.
func FirstParagraph(html string) string {
	i := strings.Index(html, "</p>")
	if i < 0 {
		return html
	}
	return html[:i+len("</p>")]
}
