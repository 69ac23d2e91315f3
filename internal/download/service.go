// Package download contains the orchestrator: it owns the worker pool
// that download jobs execute on, translates engine progress into
// registry events for the job's client token, and hands the finished
// artifact reference back to the blocked caller.
package download

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/volo-project/volo/internal/artifact"
	"github.com/volo-project/volo/internal/cache"
	"github.com/volo-project/volo/internal/engine"
	"github.com/volo-project/volo/internal/media"
	"github.com/volo-project/volo/internal/progress"
	"github.com/volo-project/volo/pkg/logger"
	"github.com/volo-project/volo/pkg/worker"
)

var log = logger.Get("DownloadServ")

type (
	Config struct {
		OutputDir       string `yaml:"output_dir" env:"OUTPUT_DIR" env-default:"./downloads"`
		Workers         int    `yaml:"workers" env:"DOWNLOAD_WORKERS" env-default:"2"`
		QueueSize       int    `yaml:"queue_size" env:"DOWNLOAD_QUEUE_SIZE" env-default:"16"`
		PublicFilesPath string `yaml:"public_files_path" env:"PUBLIC_FILES_PATH" env-default:"/api/volo/v1/files"`
	}

	// Engine is the slice of the extraction engine the orchestrator
	// needs: the byte transfer with a progress hook.
	Engine interface {
		Retrieve(ctx context.Context, mediaURL string, formatID string, outputDir string, onProgress engine.ProgressFunc) (*engine.FileResult, error)
	}

	// ArtifactCache remembers artifacts produced by earlier jobs so a
	// repeat request can skip the engine entirely.
	ArtifactCache interface {
		GetArtifact(ctx context.Context, videoID string, formatID string) (*cache.ArtifactEntry, bool)
		PutArtifact(ctx context.Context, videoID string, formatID string, entry cache.ArtifactEntry)
		DeleteArtifact(ctx context.Context, videoID string, formatID string)
	}

	// Result is what the blocked download caller receives once its job
	// reaches a successful terminal state.
	Result struct {
		Filename    string `json:"filename"`
		DownloadURL string `json:"downloadUrl"`
	}

	jobOutcome struct {
		result *Result
		err    error
	}

	// job is transient state for one retrieval; it is owned exclusively
	// by the worker executing it and is never shared or persisted.
	job struct {
		id       uuid.UUID
		url      string
		formatID string
		token    string
		outcome  chan jobOutcome
	}

	Service struct {
		config    Config
		engine    Engine
		registry  *progress.Registry
		artifacts *artifact.Store
		cache     ArtifactCache

		queue chan worker.Task
		pool  *worker.Pool
	}
)

func New(config Config, eng Engine, registry *progress.Registry, artifacts *artifact.Store, artifactCache ArtifactCache) *Service {
	queue := make(chan worker.Task, config.QueueSize)
	return &Service{
		config:    config,
		engine:    eng,
		registry:  registry,
		artifacts: artifacts,
		cache:     artifactCache,
		queue:     queue,
		pool:      worker.NewPool("download", config.Workers, queue),
	}
}

// Run starts the job workers and blocks until the context is cancelled
// and every in-flight job has finished. Jobs are never aborted mid
// transfer; cancellation only stops new jobs from starting.
func (service *Service) Run(ctx context.Context) error {
	if err := service.pool.Start(ctx); err != nil {
		return err
	}

	log.Infof("Download service running with %d workers (output: %s)\n", service.pool.Size(), service.artifacts.Dir())
	service.pool.Wait()
	return nil
}

// Download runs one retrieval job to its terminal state and returns the
// outcome. The call blocks the caller, but the job itself executes on a
// pool worker so other requests, attachments and publishes keep making
// progress while the transfer runs.
//
// The token is purely observational: a job whose token was never
// attached (or was attached elsewhere) still runs to completion, with
// its events dropping silently in the registry.
func (service *Service) Download(ctx context.Context, mediaURL string, formatID string, token string) (*Result, error) {
	if err := media.ValidateURL(mediaURL); err != nil {
		return nil, err
	}

	newJob := &job{
		id:       uuid.New(),
		url:      mediaURL,
		formatID: formatID,
		token:    token,
		outcome:  make(chan jobOutcome, 1),
	}

	select {
	case service.queue <- func() { service.execute(newJob) }:
		log.Debugf("Queued job %s for '%s' (format %s)\n", newJob.id, mediaURL, formatID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case outcome := <-newJob.outcome:
		return outcome.result, outcome.err
	case <-ctx.Done():
		// The caller is gone but the job is not abortable; it will run
		// to its terminal state with its events published as usual.
		return nil, ctx.Err()
	}
}

// execute drives one job to a terminal state. It deliberately runs
// under a fresh context: caller disconnection must not abort a transfer.
func (service *Service) execute(activeJob *job) {
	ctx := context.Background()
	publish := func(event progress.Event) {
		service.registry.Publish(activeJob.token, event)
	}

	publish(progress.Event{Status: progress.StatusStarting, Percent: 0})

	formatKey := engine.SanitizeFormatKey(activeJob.formatID)
	if formatKey == "" {
		formatKey = engine.BestFormat
	}

	if result, ok := service.fromCache(ctx, activeJob.url, formatKey); ok {
		publish(progress.Event{Status: progress.StatusFinished, Percent: 100})
		activeJob.outcome <- jobOutcome{result: result}
		return
	}

	lastPercent := float64(0)
	onProgress := func(report engine.Progress) {
		if report.Percent < lastPercent {
			return
		}
		lastPercent = report.Percent

		publish(progress.Event{
			Status:           progress.StatusDownloading,
			Percent:          report.Percent,
			SpeedBytesPerSec: report.SpeedBytesPerSec,
			EtaSeconds:       report.EtaSeconds,
		})
	}

	fileResult, err := service.engine.Retrieve(ctx, activeJob.url, activeJob.formatID, service.artifacts.Dir(), onProgress)
	if err != nil {
		// Both observers must agree on the reason: the channel listener
		// sees it in the terminal event, the HTTP caller in the error.
		publish(progress.Event{Status: progress.StatusError, Percent: lastPercent, Detail: err.Error()})
		log.Warnf("Job %s failed: %s\n", activeJob.id, err.Error())
		activeJob.outcome <- jobOutcome{err: err}
		return
	}

	result := service.describe(fileResult.Filename, fileResult.Title)
	service.remember(ctx, activeJob.formatID, formatKey, fileResult, result)

	publish(progress.Event{Status: progress.StatusFinished, Percent: 100})
	log.Emit(logger.SUCCESS, "Job %s produced artifact %s\n", activeJob.id, fileResult.Filename)
	activeJob.outcome <- jobOutcome{result: result}
}

// fromCache tries to satisfy the job from a previously produced
// artifact. A cache entry whose file has since vanished is evicted and
// ignored.
func (service *Service) fromCache(ctx context.Context, mediaURL string, formatKey string) (*Result, bool) {
	videoID, ok := media.ExtractVideoID(mediaURL)
	if !ok {
		return nil, false
	}

	entry, ok := service.cache.GetArtifact(ctx, videoID, formatKey)
	if !ok {
		return nil, false
	}

	if _, err := service.artifacts.Resolve(entry.Filename); err != nil {
		log.Debugf("Evicting stale cache entry %s/%s (artifact gone)\n", videoID, formatKey)
		service.cache.DeleteArtifact(ctx, videoID, formatKey)
		return nil, false
	}

	log.Debugf("Cache hit for %s/%s\n", videoID, formatKey)
	return service.describe(entry.Filename, entry.Title), true
}

// remember records the produced artifact under the resolved format, and
// additionally under the 'best' alias when that is what was asked for,
// so the next 'best' request hits without re-resolving.
func (service *Service) remember(ctx context.Context, requestedFormat string, formatKey string, fileResult *engine.FileResult, result *Result) {
	entry := cache.ArtifactEntry{
		Filename:    fileResult.Filename,
		DownloadURL: result.DownloadURL,
		Title:       fileResult.Title,
	}

	service.cache.PutArtifact(ctx, fileResult.VideoID, fileResult.FormatID, entry)
	if (formatKey == engine.BestFormat || requestedFormat == "") && fileResult.FormatID != engine.BestFormat {
		service.cache.PutArtifact(ctx, fileResult.VideoID, engine.BestFormat, entry)
	}
}

// describe builds the caller-facing result for a storage filename: a
// sanitised human-friendly filename, plus the URL the artifact server
// exposes it under.
func (service *Service) describe(storageName string, title string) *Result {
	friendly := media.SanitizeTitle(title) + filepath.Ext(storageName)
	downloadURL := fmt.Sprintf("%s/%s?name=%s",
		service.config.PublicFilesPath,
		url.PathEscape(storageName),
		url.QueryEscape(friendly),
	)

	return &Result{Filename: friendly, DownloadURL: downloadURL}
}
