package artifacts

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/volo-project/volo/internal/api/util"
	"github.com/volo-project/volo/internal/artifact"
)

type (
	// Store is the slice of the artifact store this controller needs.
	Store interface {
		Resolve(filename string) (string, error)
		All() []artifact.Artifact
	}

	// ArtifactDto is the listing representation of one stored artifact.
	ArtifactDto struct {
		Name       string    `json:"name"`
		SizeBytes  int64     `json:"size_bytes"`
		ModifiedAt time.Time `json:"modified_at"`
	}

	Controller struct {
		store Store
	}
)

func New(store Store) *Controller {
	return &Controller{store: store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:filename", controller.download)
}

// list returns all stored artifacts, represented as DTOs, ordered by name.
func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, util.ApplyConversion(controller.store.All(), newDto))
}

// download serves a stored artifact as an attachment. The name must
// resolve to a single file directly inside the output directory; the
// store rejects anything else before touching the filesystem. The
// optional 'name' query parameter only decorates the suggested
// client-side filename and never influences which file is read.
func (controller *Controller) download(ec echo.Context) error {
	filename := ec.Param("filename")
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}

	path, err := controller.store.Resolve(filename)
	if err != nil {
		return util.ErrorToHTTP(err)
	}

	friendly := sanitizeFriendlyName(ec.QueryParam("name"), filename)
	ec.Response().Header().Set(echo.HeaderContentType, artifact.MediaType(filename))
	ec.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, friendly))
	return ec.File(path)
}

// sanitizeFriendlyName strips characters that could break out of the
// quoted Content-Disposition filename, falling back to the storage name
// when nothing presentable remains.
func sanitizeFriendlyName(name string, fallback string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '\\' || r == '/' {
			return -1
		}
		return r
	}, name)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func newDto(model artifact.Artifact) ArtifactDto {
	return ArtifactDto{
		Name:       model.Name,
		SizeBytes:  model.SizeBytes,
		ModifiedAt: model.ModifiedAt,
	}
}
