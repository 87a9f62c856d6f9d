package models

import (
	"fmt"
	"strconv"
)

// Tag keys attached to every stored object
const (
	TagContentType  = "contentType"
	TagExpires      = "expires"
	TagETag         = "etag"
	TagLastModified = "lastModified"
	TagDepth        = "depth"
	TagCrawlID      = "crawlId"
)

// NoETag is stored when the origin sent no validator
const NoETag = "-"

// ObjectMeta is the typed form of a stored object's tags.
// Expires and LastModified are epoch seconds.
type ObjectMeta struct {
	ContentType  string `json:"contentType"`
	Expires      int64  `json:"expires"`
	ETag         string `json:"etag"`
	LastModified int64  `json:"lastModified"`
	Depth        int    `json:"depth"`
	CrawlID      string `json:"crawlId"`
}

// Tags flattens the record into the string pairs stored next to the body
func (m ObjectMeta) Tags() map[string]string {
	etag := m.ETag
	if etag == "" {
		etag = NoETag
	}
	return map[string]string{
		TagContentType:  m.ContentType,
		TagExpires:      strconv.FormatInt(m.Expires, 10),
		TagETag:         etag,
		TagLastModified: strconv.FormatInt(m.LastModified, 10),
		TagDepth:        strconv.Itoa(m.Depth),
		TagCrawlID:      m.CrawlID,
	}
}

// MetaFromTags parses tags written by Tags. Numeric fields must be integers.
func MetaFromTags(tags map[string]string) (ObjectMeta, error) {
	m := ObjectMeta{
		ContentType: tags[TagContentType],
		ETag:        tags[TagETag],
		CrawlID:     tags[TagCrawlID],
	}
	if m.ETag == "" {
		m.ETag = NoETag
	}

	var err error
	if m.Expires, err = parseIntTag(tags, TagExpires); err != nil {
		return ObjectMeta{}, err
	}
	if m.LastModified, err = parseIntTag(tags, TagLastModified); err != nil {
		return ObjectMeta{}, err
	}
	depth, err := parseIntTag(tags, TagDepth)
	if err != nil {
		return ObjectMeta{}, err
	}
	m.Depth = int(depth)
	return m, nil
}

func parseIntTag(tags map[string]string, key string) (int64, error) {
	raw, ok := tags[key]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tag %q=%q is not an integer: %w", key, raw, err)
	}
	return v, nil
}

// HasETag reports whether the origin supplied a validator
func (m ObjectMeta) HasETag() bool {
	return m.ETag != "" && m.ETag != NoETag
}
