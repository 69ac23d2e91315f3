package medias

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/volo-project/volo/internal/api/util"
	"github.com/volo-project/volo/internal/media"
)

type (
	// Service is the slice of the resolver this controller needs.
	Service interface {
		Resolve(ctx context.Context, mediaURL string) (*media.Metadata, error)
	}

	infoRequest struct {
		URL string `query:"url" validate:"required"`
	}

	// Controller is responsible for defining the metadata routes; it
	// holds the reference to the resolver used to answer them.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/info", controller.info)
}

// info resolves the URL from the query string into its metadata and
// selectable encodings. Resolution happens inline on the request; only
// downloads go through the worker pool.
func (controller *Controller) info(ec echo.Context) error {
	var request infoRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("query illegal: %v", err))
	}
	if err := ec.Validate(&request); err != nil {
		return err
	}

	metadata, err := controller.service.Resolve(ec.Request().Context(), request.URL)
	if err != nil {
		return util.ErrorToHTTP(err)
	}

	return ec.JSON(http.StatusOK, metadata)
}
