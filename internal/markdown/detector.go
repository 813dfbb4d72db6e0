// Package markdown recognises pages that are already markdown so ingestion
// can skip HTML conversion for them.
package markdown

import (
	"mime"
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s+\S`)
	listRe    = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkRe    = regexp.MustCompile(`\[.+?\]\(.+?\)`)
	titleRe   = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)
)

// mediaType returns the lower-cased media type without parameters.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}

// IsMarkdownContentType reports whether the Content-Type header names markdown.
func IsMarkdownContentType(contentType string) bool {
	switch mediaType(contentType) {
	case "text/markdown", "text/x-markdown":
		return true
	}
	return false
}

// IsHTMLContentType reports whether the Content-Type header names HTML.
func IsHTMLContentType(contentType string) bool {
	switch mediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// IsMarkdownURL checks if the URL path ends in a markdown extension.
// Query strings and fragments are ignored.
func IsMarkdownURL(rawURL string) bool {
	path := strings.ToLower(rawURL)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".markdown")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
func IsMarkdownContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || looksLikeHTML(trimmed) {
		return false
	}
	return headingRe.MatchString(trimmed) ||
		listRe.MatchString(trimmed) ||
		linkRe.MatchString(trimmed)
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	for _, prefix := range []string{"<!doctype", "<html", "<head", "<body", "<?xml"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Detect decides whether a fetched page is markdown. An explicit HTML
// Content-Type always wins; after that the markdown Content-Type, the URL
// extension and finally content heuristics are consulted.
func Detect(rawURL, contentType, content string) bool {
	if IsHTMLContentType(contentType) {
		return false
	}
	if IsMarkdownContentType(contentType) || IsMarkdownURL(rawURL) {
		return true
	}
	return IsMarkdownContent(content)
}

// Title returns the text of the first level-one heading, or "".
func Title(content string) string {
	m := titleRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
