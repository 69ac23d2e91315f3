package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/volo-project/volo/internal/api/artifacts"
	"github.com/volo-project/volo/internal/api/downloads"
	"github.com/volo-project/volo/internal/api/medias"
	"github.com/volo-project/volo/internal/api/sockets"
	"github.com/volo-project/volo/internal/progress"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("API")

const routePrefix = "/api/volo/v1"

type (
	RestConfig struct {
		HostAddr       string   `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"*"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its
	// sole responsibility is to create the routes Volo exposes and keep
	// the router running until shutdown; all behaviour lives in the
	// controllers and the services behind them.
	RestGateway struct {
		config             *RestConfig
		ec                 *echo.Echo
		mediaController    controller
		downloadController controller
		artifactController controller
		socketController   controller
	}

	requestValidator struct {
		validate *validator.Validate
	}
)

func (wrapper *requestValidator) Validate(obj any) error {
	if err := wrapper.validate.Struct(obj); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return nil
}

// NewRestGateway constructs the Echo router and populates it with all
// the routes defined by the various controllers. Each controller
// receives only the slice of the services it needs.
func NewRestGateway(
	config *RestConfig,
	resolver medias.Service,
	downloadService downloads.Service,
	artifactStore artifacts.Store,
	registry *progress.Registry,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Validator = &requestValidator{validate: validator.New()}
	ec.HTTPErrorHandler = handleHTTPError

	gateway := &RestGateway{
		config:             config,
		ec:                 ec,
		mediaController:    medias.New(resolver),
		downloadController: downloads.New(downloadService),
		artifactController: artifacts.New(artifactStore),
		socketController:   sockets.New(registry),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		// Browsers need this exposed to read the suggested filename off
		// of artifact responses.
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	ec.GET("/health", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	gateway.mediaController.SetRoutes(ec.Group(routePrefix))
	gateway.downloadController.SetRoutes(ec.Group(routePrefix))
	gateway.socketController.SetRoutes(ec.Group(routePrefix + "/ws"))
	gateway.artifactController.SetRoutes(ec.Group(routePrefix + "/files"))

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// handleHTTPError renders every error as a JSON body with a single
// 'detail' field, which is the shape the web client expects.
func handleHTTPError(err error, ec echo.Context) {
	if ec.Response().Committed {
		return
	}

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		httpErr = echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var respErr error
	if ec.Request().Method == http.MethodHead {
		respErr = ec.NoContent(httpErr.Code)
	} else {
		respErr = ec.JSON(httpErr.Code, map[string]string{"detail": fmt.Sprintf("%v", httpErr.Message)})
	}

	if respErr != nil {
		log.Errorf("Failed to respond with error payload: %s\n", respErr.Error())
	}
}
