package downloads

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/volo-project/volo/internal/api/util"
	"github.com/volo-project/volo/internal/download"
)

type (
	// Service is the slice of the download orchestrator this controller
	// needs: the blocking run-to-terminal-state call.
	Service interface {
		Download(ctx context.Context, mediaURL string, formatID string, token string) (*download.Result, error)
	}

	downloadRequest struct {
		URL      string `query:"url" validate:"required"`
		FormatID string `query:"format_id"`
		Token    string `query:"token"`
	}

	// DownloadDto is the response for a download that reached its
	// successful terminal state.
	DownloadDto struct {
		Status      string `json:"status"`
		Filename    string `json:"filename"`
		DownloadURL string `json:"downloadUrl"`
	}

	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/download", controller.download)
}

// download runs the retrieval to completion before responding. The
// request blocks for the whole transfer; progress is observable out of
// band on the socket attached under the request's token.
func (controller *Controller) download(ec echo.Context) error {
	var request downloadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("query illegal: %v", err))
	}
	if err := ec.Validate(&request); err != nil {
		return err
	}

	result, err := controller.service.Download(ec.Request().Context(), request.URL, request.FormatID, request.Token)
	if err != nil {
		return util.ErrorToHTTP(err)
	}

	return ec.JSON(http.StatusOK, DownloadDto{
		Status:      "success",
		Filename:    result.Filename,
		DownloadURL: result.DownloadURL,
	})
}
