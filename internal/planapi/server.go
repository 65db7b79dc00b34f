// Package planapi serves launch-argument layout planning over HTTP.
package planapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/hicann/launchargs/internal/logger"
	"github.com/hicann/launchargs/pkg/argbuf"
)

type Server struct {
	store *LayoutStore
	opts  argbuf.Options
	log   logger.Logger
	clock func() time.Time
}

// NewServer returns a server compiling with opts. A request's word_size
// overrides opts.WordSize.
func NewServer(store *LayoutStore, opts argbuf.Options, log logger.Logger) *Server {
	if store == nil {
		store = NewLayoutStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store: store,
		opts:  opts,
		log:   log,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/layouts", s.handleCreateLayout)
	e.GET("/v1/layouts", s.handleListLayouts)
	e.GET("/v1/layouts/:id", s.handleGetLayout)
	e.DELETE("/v1/layouts/:id", s.handleDeleteLayout)
}

func (s *Server) handleCreateLayout(c *echo.Context) error {
	req, err := decodeJSON[CreateLayoutRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Node == nil {
		return writeBadRequest(c, "node is required")
	}

	opts := s.opts
	if req.WordSize != 0 {
		opts.WordSize = req.WordSize
	}
	opts.Logger = s.log
	l, err := argbuf.Compile(req.Node, req.Groups, opts)
	if err != nil {
		return writeLayoutError(c, err)
	}

	view := s.store.Save(req.Name, l, s.clock())
	s.log.Info("layout created", "id", view.ID, "name", view.Name, "total", view.Total)
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleListLayouts(c *echo.Context) error {
	return c.JSON(http.StatusOK, ListLayoutsResp{
		Object: "list",
		Data:   s.store.List(),
	})
}

func (s *Server) handleGetLayout(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "layout not found")
	}
	return c.JSON(http.StatusOK, rec.View)
}

func (s *Server) handleDeleteLayout(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "layout not found")
	}
	return c.JSON(http.StatusOK, DeleteLayoutResp{
		ID:      id,
		Object:  "layout.deleted",
		Deleted: true,
	})
}
