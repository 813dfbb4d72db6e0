// Package processor turns fetched HTML into markdown suitable for chunking.
package processor

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// boilerplate is removed before readability runs.
const boilerplate = "script, style, noscript, nav, header, footer, iframe, svg, form"

// Result is the readable form of an HTML page.
type Result struct {
	Title    string
	Excerpt  string
	Markdown string
}

// Processor converts HTML content to Markdown.
type Processor struct{}

// New creates a new HTML to Markdown processor.
func New() *Processor {
	return &Processor{}
}

// Process strips page chrome, extracts the main article and converts it to
// markdown. When readability finds nothing the cleaned body is converted
// instead, so short pages still produce text.
func (p *Processor) Process(rawHTML, pageURL string) (*Result, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return &Result{}, nil
	}

	cleaned, body, err := stripBoilerplate(rawHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	res := &Result{Title: p.ExtractTitle(rawHTML)}

	articleHTML := ""
	if parsedURL, err := url.Parse(pageURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(cleaned), parsedURL)
		if err != nil {
			slog.Debug("readability failed, using full body", "url", pageURL, "error", err)
		} else {
			articleHTML = article.Content
			res.Excerpt = strings.TrimSpace(article.Excerpt)
			if t := strings.TrimSpace(article.Title); t != "" && res.Title == "" {
				res.Title = t
			}
		}
	}

	md := ""
	if articleHTML != "" {
		if md, err = p.Convert(articleHTML); err != nil {
			return nil, err
		}
	}
	if md == "" {
		if md, err = p.Convert(body); err != nil {
			return nil, err
		}
	}
	res.Markdown = md
	return res, nil
}

// Convert transforms HTML content into Markdown.
func (p *Processor) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	markdown, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	return strings.TrimSpace(markdown), nil
}

// ExtractTitle extracts the <title> content from HTML.
func (p *Processor) ExtractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node) bool
	findTitle = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			var buf bytes.Buffer
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					buf.WriteString(c.Data)
				}
			}
			title = buf.String()
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if findTitle(c) {
				return true
			}
		}
		return false
	}
	findTitle(doc)

	return strings.Join(strings.Fields(title), " ")
}

// stripBoilerplate returns the cleaned document and the cleaned <body> alone.
func stripBoilerplate(rawHTML string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", err
	}
	doc.Find(boilerplate).Remove()

	full, err := doc.Html()
	if err != nil {
		return "", "", err
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", "", err
	}
	return full, body, nil
}
