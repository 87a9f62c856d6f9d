package models

import "strings"

// CrawlTask is one unit of work: visit path with the remaining hop budget of depth.
// It is the exact JSON body of every queue message.
type CrawlTask struct {
	Path    string `json:"path"`
	Depth   int    `json:"depth"`
	CrawlID string `json:"crawlId"`
	Force   bool   `json:"force"`
}

// ReprocessRequest asks for links to be re-derived from an already stored object
type ReprocessRequest struct {
	Path        string `json:"path"`
	Depth       int    `json:"depth"`
	CrawlID     string `json:"crawlId"`
	ContentType string `json:"contentType"`
}

// StoredObject is a mirrored resource: body plus the metadata written with it
type StoredObject struct {
	Key  string
	Body []byte
	Meta ObjectMeta
}

// RewriteResult is the output of one extraction call.
// Paths keeps encounter order and duplicates.
type RewriteResult struct {
	Body  string
	Paths []string
}

// IsScrapable reports whether a content type carries links worth extracting (HTML or CSS)
func IsScrapable(contentType string) bool {
	return IsHTML(contentType) || IsCSS(contentType)
}

// IsHTML reports whether a content type is an HTML or XHTML document
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

// IsCSS reports whether a content type is a stylesheet
func IsCSS(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "css")
}
