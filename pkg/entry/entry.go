package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// Walker runs the Crawl Step for the first task of a run
type Walker interface {
	Walk(ctx context.Context, task models.CrawlTask) (models.Result, error)
}

// Launcher starts workers that drain the queue
type Launcher interface {
	Launch(ctx context.Context, workers int) error
}

// Response is the status code and JSON body returned to the caller
type Response struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	CrawlID    string `json:"crawlId,omitempty"`
	Err        string `json:"err,omitempty"`
}

// Body renders the JSON payload
func (r Response) Body() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"message":"` + models.MessageServerError + `"}`)
	}
	return b
}

// Starter is the entry operation: it walks the requested path once and, when
// the walk was accepted, launches workers for the tasks it queued
type Starter struct {
	walker       Walker
	launcher     Launcher
	workers      int
	defaultDepth int
	newID        func() string
	log          *logrus.Entry
}

// NewStarter creates a Starter. launcher may be nil when workers are run separately.
func NewStarter(w Walker, l Launcher, cfg *config.AppConfig, logger *logrus.Entry) *Starter {
	return &Starter{
		walker:       w,
		launcher:     l,
		workers:      cfg.Worker.Processes,
		defaultDepth: cfg.DefaultDepth,
		newID:        uuid.NewString,
		log:          logger.WithField("component", "entry"),
	}
}

// ParseRequest reads path, depth, crawlId and force from query parameters.
// A missing depth takes the configured default and a missing crawlId is generated.
func (s *Starter) ParseRequest(params url.Values) (models.CrawlTask, error) {
	task := models.CrawlTask{
		Path:    params.Get("path"),
		Depth:   s.defaultDepth,
		CrawlID: strings.TrimSpace(params.Get("crawlId")),
	}

	if raw := strings.TrimSpace(params.Get("depth")); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			return models.CrawlTask{}, fmt.Errorf("%w: depth %q is not an integer", utils.ErrInvalidInput, raw)
		}
		if depth < 0 {
			return models.CrawlTask{}, fmt.Errorf("%w: depth %d is negative", utils.ErrInvalidInput, depth)
		}
		task.Depth = depth
	}

	if raw := strings.TrimSpace(params.Get("force")); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return models.CrawlTask{}, fmt.Errorf("%w: force %q is not a boolean", utils.ErrInvalidInput, raw)
		}
		task.Force = force
	}

	if task.CrawlID == "" {
		task.CrawlID = s.newID()
	}
	return task, nil
}

// Handle parses params and runs Start
func (s *Starter) Handle(ctx context.Context, params url.Values) Response {
	task, err := s.ParseRequest(params)
	if err != nil {
		s.log.WithField("params", params.Encode()).Warnf("Rejected entry request: %v", err)
		return Response{StatusCode: http.StatusBadRequest, Message: models.MessageBadRequest}
	}
	return s.Start(ctx, task)
}

// Start walks task and launches workers if the walk was accepted
func (s *Starter) Start(ctx context.Context, task models.CrawlTask) Response {
	reqLog := s.log.WithFields(logrus.Fields{"path": task.Path, "depth": task.Depth, "crawl_id": task.CrawlID, "force": task.Force})

	res, err := s.walker.Walk(ctx, task)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidInput) {
			return Response{StatusCode: http.StatusBadRequest, Message: models.MessageBadRequest}
		}
		reqLog.WithField("category", utils.CategorizeError(err)).Errorf("Entry walk failed: %v", err)
		return serverError(err)
	}

	resp := Response{StatusCode: res.StatusCode, Message: res.Message}
	if res.Message != models.MessageAccepted {
		return resp
	}
	resp.CrawlID = task.CrawlID

	if s.launcher != nil {
		if err := s.launcher.Launch(ctx, s.workers); err != nil {
			reqLog.WithField("category", utils.CategorizeError(err)).Errorf("Launching workers failed: %v", err)
			return serverError(err)
		}
	}
	reqLog.WithFields(logrus.Fields{"outcome": res.Outcome, "queued": res.Queued}).Info("Crawl accepted")
	return resp
}

func serverError(err error) Response {
	return Response{StatusCode: http.StatusInternalServerError, Message: models.MessageServerError, Err: err.Error()}
}
