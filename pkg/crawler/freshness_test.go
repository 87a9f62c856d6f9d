package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sitemirror/pkg/models"
)

func TestDecide(t *testing.T) {
	now := testNow
	fresh := now.Unix() + 60
	stale := now.Unix() - 60

	tests := []struct {
		name  string
		task  models.CrawlTask
		meta  models.ObjectMeta
		found bool
		want  Decision
	}{
		{"depth zero", models.CrawlTask{Path: "/", Depth: 0, CrawlID: "r"}, models.ObjectMeta{}, false, DecisionFinish},
		{"depth zero beats bad path", models.CrawlTask{Path: "x", Depth: 0}, models.ObjectMeta{}, false, DecisionFinish},
		{"relative path", models.CrawlTask{Path: "x", Depth: 1, CrawlID: "r"}, models.ObjectMeta{}, false, DecisionBadRequest},
		{"missing crawl id", models.CrawlTask{Path: "/x", Depth: 1}, models.ObjectMeta{}, false, DecisionBadRequest},
		{"miss", models.CrawlTask{Path: "/x", Depth: 1, CrawlID: "r"}, models.ObjectMeta{}, false, DecisionFetchUnconditional},
		{"satisfied same depth", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "r", Depth: 2}, true, DecisionSatisfied},
		{"satisfied deeper", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "r", Depth: 5, Expires: stale}, true, DecisionSatisfied},
		{"same run shallower visit", models.CrawlTask{Path: "/x", Depth: 3, CrawlID: "r"}, models.ObjectMeta{CrawlID: "r", Depth: 2, ContentType: "image/png"}, true, DecisionFetchConditional},
		{"fresh html", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "old", ContentType: "text/html", Expires: fresh}, true, DecisionReprocess},
		{"fresh css", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "old", ContentType: "text/css", Expires: fresh}, true, DecisionReprocess},
		{"fresh binary", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "old", ContentType: "image/png", Expires: fresh}, true, DecisionFetchConditional},
		{"stale html", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "old", ContentType: "text/html", Expires: stale}, true, DecisionFetchConditional},
		{"expires exactly now", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r"}, models.ObjectMeta{CrawlID: "old", ContentType: "text/html", Expires: now.Unix()}, true, DecisionFetchConditional},
		{"force on satisfied", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r", Force: true}, models.ObjectMeta{CrawlID: "r", Depth: 9}, true, DecisionFetchUnconditional},
		{"force on fresh", models.CrawlTask{Path: "/x", Depth: 2, CrawlID: "r", Force: true}, models.ObjectMeta{ContentType: "text/html", Expires: fresh}, true, DecisionFetchUnconditional},
		{"force keeps depth guard", models.CrawlTask{Path: "/x", Depth: 0, CrawlID: "r", Force: true}, models.ObjectMeta{}, false, DecisionFinish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.task, tt.meta, tt.found, now))
		})
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "fetch_conditional", DecisionFetchConditional.String())
	assert.Equal(t, "unknown", Decision(99).String())
}
