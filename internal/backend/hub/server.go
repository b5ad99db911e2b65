// Package hub is the self-hosted backend: a small HTTP object service that a
// team runs on one machine, and the client the engine uses to reach it.
package hub

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"modsync/internal/backend/localfs"
	"modsync/internal/logger"
	"modsync/internal/syncerr"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	pathHealth  = "/v1/health"
	pathObjects = "/v1/objects"
)

type listResponse struct {
	Keys []string `json:"keys"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	echo  *echo.Echo
	store *localfs.Store
	addr  string
}

// NewServer serves objects from dataDir. A non-empty token is required as a
// bearer token on every object route.
func NewServer(dataDir, addr, token string) (*Server, error) {
	store, err := localfs.New(dataDir)
	if err != nil {
		return nil, err
	}

	if err := store.Connect(context.Background()); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, store: store, addr: addr}
	s.registerRoutes(token)
	return s, nil
}

func (s *Server) registerRoutes(token string) {
	s.echo.GET(pathHealth, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	g := s.echo.Group(pathObjects)
	if token != "" {
		g.Use(middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		}))
	}
	g.GET("", s.handleList)
	g.GET("/*", s.handleGet)
	g.PUT("/*", s.handlePut)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		logger.Log.Info("hub server started",
			zap.String("addr", s.addr),
			zap.String("data_dir", s.store.Root()))

		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("hub server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleList(c echo.Context) error {
	keys, err := s.store.List(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	if keys == nil {
		keys = []string{}
	}

	return c.JSON(http.StatusOK, listResponse{Keys: keys})
}

func (s *Server) handleGet(c echo.Context) error {
	data, err := s.store.Get(c.Request().Context(), c.Param("*"))
	switch syncerr.KindOf(err) {
	case "":
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
	case syncerr.KindNotFound:
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case syncerr.KindInvalidArgument:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handlePut(c echo.Context) error {
	key := c.Param("*")

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	if err := s.store.Put(c.Request().Context(), key, data); err != nil {
		if syncerr.KindOf(err) == syncerr.KindInvalidArgument {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	logger.Log.Debug("object stored",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return c.NoContent(http.StatusNoContent)
}
