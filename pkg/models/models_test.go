package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlTask_WireFormat(t *testing.T) {
	task := CrawlTask{Path: "/docs/", Depth: 2, CrawlID: "run-1", Force: true}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/docs/","depth":2,"crawlId":"run-1","force":true}`, string(data))

	var got CrawlTask
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, task, got)
}

func TestCrawlTask_MissingForceDecodesFalse(t *testing.T) {
	var got CrawlTask
	require.NoError(t, json.Unmarshal([]byte(`{"path":"/a","depth":1,"crawlId":"x"}`), &got))
	assert.False(t, got.Force)
	assert.Equal(t, "/a", got.Path)
}

func TestObjectMeta_Tags(t *testing.T) {
	meta := ObjectMeta{
		ContentType:  "text/css",
		Expires:      1700000100,
		ETag:         "abc123",
		LastModified: 1700000000,
		Depth:        3,
		CrawlID:      "run-1",
	}

	tags := meta.Tags()
	assert.Equal(t, map[string]string{
		"contentType":  "text/css",
		"expires":      "1700000100",
		"etag":         "abc123",
		"lastModified": "1700000000",
		"depth":        "3",
		"crawlId":      "run-1",
	}, tags)

	parsed, err := MetaFromTags(tags)
	require.NoError(t, err)
	assert.Equal(t, meta, parsed)
}

func TestObjectMeta_EmptyETagBecomesDash(t *testing.T) {
	meta := ObjectMeta{ContentType: "image/png"}
	assert.Equal(t, NoETag, meta.Tags()[TagETag])
	assert.False(t, meta.HasETag())

	parsed, err := MetaFromTags(map[string]string{TagContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, NoETag, parsed.ETag)
}

func TestMetaFromTags_RejectsNonNumeric(t *testing.T) {
	for _, key := range []string{TagExpires, TagLastModified, TagDepth} {
		t.Run(key, func(t *testing.T) {
			tags := ObjectMeta{ContentType: "text/html"}.Tags()
			tags[key] = "soon"
			_, err := MetaFromTags(tags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestIsScrapable(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"application/xhtml+xml", true},
		{"text/css", true},
		{"TEXT/HTML", true},
		{"image/png", false},
		{"application/javascript", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsScrapable(tt.contentType), "IsScrapable(%q)", tt.contentType)
	}
	assert.True(t, IsCSS("text/css"))
	assert.False(t, IsCSS("text/html"))
	assert.True(t, IsHTML("application/xhtml+xml"))
	assert.False(t, IsHTML("text/css"))
}
