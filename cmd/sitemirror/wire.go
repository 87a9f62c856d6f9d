package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/crawler"
	"sitemirror/pkg/dedup"
	"sitemirror/pkg/fetch"
	"sitemirror/pkg/lambdafn"
	"sitemirror/pkg/queue"
	"sitemirror/pkg/status"
	"sitemirror/pkg/storage"
)

const badgerGCInterval = 10 * time.Minute

// app holds every component built from one configuration
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Entry
	store    storage.ObjectStore
	queue    queue.Queue
	markers  *dedup.Set
	recorder status.Recorder
	crawler  *crawler.Crawler
	invoker  *lambdafn.Invoker // nil unless built for Lambda

	closers []func() error
}

// buildApp wires the backends selected in cfg. With useLambda, Reprocess Steps
// and worker launches go through Lambda invocations instead of local goroutines.
func buildApp(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, useLambda bool) (_ *app, err error) {
	a := &app{cfg: cfg, log: logrus.NewEntry(logger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var awsCfg aws.Config
	if useLambda || cfg.Store.Backend == config.StoreS3 || cfg.Queue.Backend == config.QueueSQS {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	// --- Storage ---
	switch cfg.Store.Backend {
	case config.StoreS3:
		a.store = storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Store.Bucket, a.log)
	default:
		bs, err := storage.NewBadgerStore(cfg.Store.StateDir, cfg.TargetURL().Host, a.log)
		if err != nil {
			return nil, err
		}
		gcCtx, stopGC := context.WithCancel(context.Background())
		go bs.RunGC(gcCtx, badgerGCInterval)
		a.closers = append(a.closers, func() error { stopGC(); return nil })
		a.store = bs
	}
	a.closers = append(a.closers, a.store.Close)

	// --- Queue ---
	switch cfg.Queue.Backend {
	case config.QueueSQS:
		a.queue, err = queue.NewSQSQueue(ctx, sqs.NewFromConfig(awsCfg), cfg.Queue, a.log)
	case config.QueueAMQP:
		a.queue, err = queue.DialAMQP(cfg.Queue.AMQPURL, cfg.Queue.Name, a.log)
	case config.QueueKafka:
		a.queue = queue.NewKafkaQueue(cfg.Queue, a.log)
	default:
		a.queue = queue.NewMemoryQueue(cfg.Queue.VisibilityTimeout, a.log, queue.WithMaxReceives(cfg.Queue.MaxReceives))
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)

	// --- Dedup markers ---
	a.markers, err = dedup.New(context.Background(), cfg.Dedup)
	if err != nil {
		return nil, fmt.Errorf("create dedup set: %w", err)
	}
	a.closers = append(a.closers, a.markers.Close)

	// --- Run status ---
	switch cfg.Status.Backend {
	case config.StatusRedis:
		a.recorder, err = status.NewRedisRecorder(ctx, cfg.Status.RedisAddr, cfg.Status.Prefix, cfg.Status.TTL, a.log)
		if err != nil {
			return nil, err
		}
	case config.StatusNone:
		a.recorder = status.Nop{}
	default:
		a.recorder = status.NewMemoryRecorder()
	}
	a.closers = append(a.closers, a.recorder.Close)

	// --- Crawler ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, a.log)
	fetcher := fetch.NewFetcher(httpClient, cfg, a.log.WithField("component", "fetcher"))
	fanout := crawler.NewFanout(a.queue, a.markers, cfg.FanoutConcurrency, a.log.WithField("component", "fanout"))

	opts := []crawler.Option{crawler.WithRecorder(a.recorder)}
	if useLambda {
		a.invoker = lambdafn.NewInvoker(lambdasvc.NewFromConfig(awsCfg), cfg.Lambda, a.log)
		opts = append(opts, crawler.WithInvoker(a.invoker))
	}
	a.crawler = crawler.New(cfg, a.store, fetcher, fanout, a.log, opts...)
	return a, nil
}

// Close waits for local background steps and releases backends in reverse order
func (a *app) Close() {
	if a.crawler != nil {
		a.crawler.Settle()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnf("Close failed: %v", err)
		}
	}
	a.closers = nil
}
