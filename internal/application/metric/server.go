package metric

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter - хранилище, умеющее сказать сколько в нём записей
type Counter interface {
	Count() int
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// NewServer создает сервер метрик. /health отдаёт размер живых индексов координатора.
func NewServer(rooms, connections Counter) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:      "ok",
			Rooms:       rooms.Count(),
			Connections: connections.Count(),
		})
	})

	return e
}
