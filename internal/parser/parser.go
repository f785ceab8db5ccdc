// Package parser extracts raw label/value strings from certificate listing and
// detail pages. It never interprets values; number and date conversion is left
// to the locale package.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/CertGoat/internal/locale"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// Parser turns fetched responses into queryable documents.
type Parser struct {
	logger *slog.Logger
}

// New creates a new Parser.
func New(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger.With("component", "parser"),
	}
}

// Parse builds a Document from a response body.
func (p *Parser) Parse(resp *types.Response) (*Document, error) {
	if resp == nil || len(resp.Body) == 0 {
		return nil, types.ErrEmptyResponse
	}

	var isin, tag string
	if resp.Request != nil {
		isin, tag = resp.Request.ISIN, resp.Request.Tag
	}

	doc, err := NewDocument(resp.Body, resp.FinalURL)
	if err != nil {
		return nil, &types.ParseError{
			URL:  resp.Request.URLString(),
			ISIN: isin,
			Err:  err,
		}
	}

	p.logger.Debug("parsed document",
		"url", resp.FinalURL,
		"bytes", len(resp.Body),
		"tag", tag,
	)
	return doc, nil
}

// Document is one parsed HTML page. The same node tree backs both the CSS
// (goquery) and the XPath (htmlquery) lookups.
type Document struct {
	root *html.Node
	doc  *goquery.Document
	base *url.URL

	pairs  []labelValue
	paired bool
}

type labelValue struct {
	label string
	value string
}

// NewDocument parses body as HTML. baseURL is used to resolve relative links
// and may be empty.
func NewDocument(body []byte, baseURL string) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	d := &Document{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			d.base = u
		}
	}
	return d, nil
}

// resolve turns href into an absolute http(s) URL, or "" when it is not a link
// worth following.
func (d *Document) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if d.base != nil {
		ref = d.base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref.String()
}

// cleanText collapses whitespace, including non-breaking spaces.
func cleanText(s string) string {
	return locale.Clean(s)
}

// normalizeLabel lower-cases a label and strips trailing colons so that
// "Scadenza:" and "scadenza" compare equal.
func normalizeLabel(s string) string {
	s = strings.ToLower(cleanText(s))
	s = strings.TrimRight(s, ": ")
	return strings.TrimSpace(s)
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if n := normalizeLabel(l); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// usable reports whether an extracted value carries data.
func usable(v string) bool {
	return v != "" && !locale.IsSentinel(v)
}
