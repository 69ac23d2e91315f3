package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/volo-project/volo/internal/api"
	"github.com/volo-project/volo/internal/artifact"
	"github.com/volo-project/volo/internal/cache"
	"github.com/volo-project/volo/internal/download"
	"github.com/volo-project/volo/internal/engine"
	"github.com/volo-project/volo/internal/media"
	"github.com/volo-project/volo/internal/progress"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}
)

// Volo represents the top-level object for the server, and is
// responsible for wiring together the engine, stores and services, and
// keeping them running until shutdown.
type voloImpl struct {
	config   VoloConfig
	registry *progress.Registry

	artifactStore   *artifact.Store
	downloadService *download.Service
	restGateway     RunnableService
}

func New(config VoloConfig) *voloImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Volo services using config: %#v\n", config)

	registry := progress.NewRegistry()
	ytdlp := engine.New(config.Engine)
	resolver := media.NewResolver(ytdlp)

	store, err := artifact.NewStore(config.Downloads.OutputDir)
	if err != nil {
		panic(fmt.Sprintf("failed to construct artifact store due to error: %s", err.Error()))
	}

	downloadService := download.New(config.Downloads, ytdlp, registry, store, cache.New(config.Cache))

	return &voloImpl{
		config:          config,
		registry:        registry,
		artifactStore:   store,
		downloadService: downloadService,
		restGateway:     api.NewRestGateway(&config.API, resolver, downloadService, store, registry),
	}
}

// Run brings up all of Volo's services and does not return until Volo
// is stopped. To stop Volo, the provided context must be cancelled;
// errors from which Volo cannot recover will also cause it to stop.
func (volo *voloImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	volo.spawnAsyncService(ctx, wg, volo.artifactStore, "artifact-store", crashHandler)
	volo.spawnAsyncService(ctx, wg, volo.downloadService, "download-service", crashHandler)
	volo.spawnAsyncService(ctx, wg, volo.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Volo services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided service as its own
// go-routine, ensuring that the Volo service waitgroup is updated
// correctly.
func (volo *voloImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
