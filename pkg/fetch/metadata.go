package fetch

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"sitemirror/pkg/models"
)

// DefaultContentType is assumed when the origin sends none
const DefaultContentType = "text/html"

// ContentType returns the media type of a response without parameters
func ContentType(h http.Header) string {
	raw := strings.TrimSpace(h.Get("Content-Type"))
	if raw == "" {
		return DefaultContentType
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	mediaType, _, _ := strings.Cut(raw, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// MetaFromResponse builds the metadata stored alongside a successfully fetched body.
// Missing or unparseable Expires and Last-Modified fall back to now.
func MetaFromResponse(h http.Header, depth int, crawlID string, now time.Time) models.ObjectMeta {
	return models.ObjectMeta{
		ContentType:  ContentType(h),
		Expires:      headerTime(h, "Expires", now),
		ETag:         StripETag(h.Get("ETag")),
		LastModified: headerTime(h, "Last-Modified", now),
		Depth:        depth,
		CrawlID:      crawlID,
	}
}

func headerTime(h http.Header, key string, now time.Time) int64 {
	if raw := h.Get(key); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			return t.Unix()
		}
	}
	return now.Unix()
}

// StripETag removes the quoting from a validator: `W/"abc"` is stored as `W/abc`
func StripETag(etag string) string {
	etag = strings.ReplaceAll(strings.TrimSpace(etag), `"`, "")
	if etag == "" {
		return models.NoETag
	}
	return etag
}

// QuoteETag restores the wire form of a stored validator
func QuoteETag(etag string) string {
	if rest, weak := strings.CutPrefix(etag, "W/"); weak {
		return `W/"` + rest + `"`
	}
	return `"` + etag + `"`
}

// ConditionalHeaders returns the revalidation headers for a cached object.
// If-None-Match is only sent when a validator was recorded.
func ConditionalHeaders(meta models.ObjectMeta) http.Header {
	h := http.Header{}
	if meta.HasETag() {
		h.Set("If-None-Match", QuoteETag(meta.ETag))
	}
	h.Set("If-Modified-Since", time.Unix(meta.LastModified, 0).UTC().Format(http.TimeFormat))
	return h
}
