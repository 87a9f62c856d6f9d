package crawler

import (
	"time"

	"sitemirror/pkg/models"
	"sitemirror/pkg/parse"
)

// Decision is the Freshness Engine verdict for one task
type Decision int

const (
	DecisionProceed            Decision = iota // Guards passed, consult the store
	DecisionFinish                             // Depth exhausted
	DecisionBadRequest                         // Malformed path or missing crawl id
	DecisionSatisfied                          // Visited at least this deep in this run
	DecisionReprocess                          // Cached copy still valid, only re-derive links
	DecisionFetchConditional                   // Revalidate the cached copy with the origin
	DecisionFetchUnconditional                 // No usable cached copy
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionFinish:
		return "finish"
	case DecisionBadRequest:
		return "bad_request"
	case DecisionSatisfied:
		return "satisfied"
	case DecisionReprocess:
		return "reprocess"
	case DecisionFetchConditional:
		return "fetch_conditional"
	case DecisionFetchUnconditional:
		return "fetch_unconditional"
	}
	return "unknown"
}

// Guard applies the checks that need no stored state: depth and input shape
func Guard(depth int, path, crawlID string) Decision {
	if depth <= 0 {
		return DecisionFinish
	}
	if !parse.IsValidPath(path) || crawlID == "" {
		return DecisionBadRequest
	}
	return DecisionProceed
}

// Decide runs the full decision table for task against the stored metadata.
// found is false on a cache miss, in which case meta is ignored.
func Decide(task models.CrawlTask, meta models.ObjectMeta, found bool, now time.Time) Decision {
	if d := Guard(task.Depth, task.Path, task.CrawlID); d != DecisionProceed {
		return d
	}
	if task.Force || !found {
		return DecisionFetchUnconditional
	}
	if meta.CrawlID == task.CrawlID && meta.Depth >= task.Depth {
		return DecisionSatisfied
	}
	if meta.Expires > now.Unix() && models.IsScrapable(meta.ContentType) {
		return DecisionReprocess
	}
	return DecisionFetchConditional
}
