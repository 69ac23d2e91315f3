package sockets

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/volo-project/volo/internal/progress"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("ProgressSock")

type (
	// Controller upgrades progress-stream requests to websockets and
	// bridges them onto the registry: one attached sink per token, with
	// the most recent connection winning.
	Controller struct {
		registry *progress.Registry
		upgrader *websocket.Upgrader
	}
)

func New(registry *progress.Registry) *Controller {
	return &Controller{
		registry: registry,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:token", controller.stream)
}

// stream attaches the connection as the listener for its token and
// relays published events until the transport closes. A later
// connection for the same token displaces this one in the registry;
// detachment is guarded so the displaced connection cannot remove its
// replacement on the way out.
func (controller *Controller) stream(ec echo.Context) error {
	token := ec.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client token must not be empty")
	}

	conn, err := controller.upgrader.Upgrade(ec.Response(), ec.Request(), nil)
	if err != nil {
		// The upgrader has already written the failure response.
		return nil
	}

	sink := progress.NewChannelSink()
	controller.registry.Attach(token, sink)
	log.Debugf("Listener attached for token '%s'\n", token)

	// Writer drains the sink until it is closed. A write failure tears
	// the connection down, which ends the read loop below.
	go func() {
		for event := range sink.Events() {
			if err := conn.WriteJSON(event); err != nil {
				log.Debugf("Write to listener '%s' failed: %s\n", token, err.Error())
				conn.Close()
				return
			}
		}
	}()

	// The read loop exists only to observe transport close; inbound
	// payloads are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if controller.registry.Detach(token, sink) {
		log.Debugf("Listener detached from token '%s'\n", token)
	}
	sink.Close()
	conn.Close()
	return nil
}
