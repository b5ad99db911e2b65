package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"modsync/internal/engine"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const writeTimeout = 20 * time.Second

type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	port   int
	stopCh chan struct{}
}

func NewServer(eng *engine.Engine, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		engine: eng,
		port:   port,
		stopCh: make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST(pathStop, s.handleStop)
	s.echo.GET(pathEvents, s.handleEvents)

	g := s.echo.Group(pathAPI)
	g.POST("/"+ChannelSyncProject, s.handleSync)
	g.POST("/"+ChannelEnableAutoSync, s.handleEnableAutoSync)
	g.POST("/"+ChannelDisableAutoSync, s.handleDisableAutoSync)
	g.POST("/"+ChannelShareProject, s.handleShare)
	g.POST("/"+ChannelJoinProject, s.handleJoin)
	g.POST("/"+ChannelBroadcastChange, s.handleBroadcast)
	g.POST("/"+ChannelSubscribeToChanges, s.handleSubscribe)
	g.POST("/"+ChannelUnsubscribeFromChanges, s.handleUnsubscribe)
	g.POST("/"+ChannelDetectConflicts, s.handleDetectConflicts)
	g.POST("/"+ChannelResolveConflict, s.handleResolveConflict)
	g.POST("/"+ChannelGetProjectHistory, s.handleHistory)
	g.POST("/"+ChannelRestoreSnapshot, s.handleRestore)
	g.POST("/"+ChannelUploadAsset, s.handleUploadAsset)
	g.POST("/"+ChannelDownloadAsset, s.handleDownloadAsset)
	g.POST("/"+ChannelGetStatus, s.handleStatus)
	g.POST("/"+ChannelGetCollaborationSession, s.handleSession)
	g.POST("/"+ChannelWatchProject, s.handleWatch)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("bridge server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("bridge server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func bind[T any](c echo.Context) (T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return req, syncerr.Wrap(syncerr.KindInvalidArgument, err, "malformed request")
	}

	return req, nil
}

func fail(c echo.Context, err error) error {
	return c.JSON(http.StatusOK, Envelope{
		Success: false,
		Error:   err.Error(),
		Kind:    string(syncerr.KindOf(err)),
	})
}

func ok(c echo.Context) error {
	return c.JSON(http.StatusOK, Envelope{Success: true})
}

// data replies with v as the payload. A nil pointer is sent as null.
func data(c echo.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Envelope{Success: true, Data: raw})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleSync(c echo.Context) error {
	req, err := bind[syncRequest](c)
	if err != nil {
		return fail(c, err)
	}

	result, err := s.engine.SyncProject(c.Request().Context(), req.ProjectID, req.Direction)
	if err != nil {
		return fail(c, err)
	}

	return data(c, result)
}

func (s *Server) handleEnableAutoSync(c echo.Context) error {
	req, err := bind[autoSyncRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.EnableAutoSync(req.ProjectID, time.Duration(req.Interval)*time.Millisecond); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleDisableAutoSync(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	return data(c, s.engine.DisableAutoSync(req.ProjectID))
}

func (s *Server) handleShare(c echo.Context) error {
	req, err := bind[shareRequest](c)
	if err != nil {
		return fail(c, err)
	}

	result, err := s.engine.ShareProject(c.Request().Context(), req.ProjectID, req.Collaborators)
	if err != nil {
		return fail(c, err)
	}

	return data(c, result)
}

func (s *Server) handleJoin(c echo.Context) error {
	req, err := bind[joinRequest](c)
	if err != nil {
		return fail(c, err)
	}

	result, err := s.engine.JoinProject(c.Request().Context(), req.InviteCode)
	if err != nil {
		return fail(c, err)
	}

	return data(c, result)
}

func (s *Server) handleBroadcast(c echo.Context) error {
	change, err := bind[model.ProjectChange](c)
	if err != nil {
		return fail(c, err)
	}

	if _, err := s.engine.Broadcast(c.Request().Context(), change); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleSubscribe(c echo.Context) error {
	req, err := bind[subscribeRequest](c)
	if err != nil {
		return fail(c, err)
	}

	sub, err := s.engine.Subscribe(req.ProjectID, req.Filters)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Envelope{Success: true, SubscriptionID: sub.ID})
}

func (s *Server) handleUnsubscribe(c echo.Context) error {
	req, err := bind[unsubscribeRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.Unsubscribe(req.SubscriptionID); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleDetectConflicts(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	conflicts, err := s.engine.DetectConflicts(c.Request().Context(), req.ProjectID)
	if err != nil {
		return fail(c, err)
	}

	return data(c, ConflictReport{Conflicts: conflicts, Timestamp: time.Now().UTC()})
}

func (s *Server) handleResolveConflict(c echo.Context) error {
	req, err := bind[resolveRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.ResolveConflict(c.Request().Context(), req.Conflict, req.Resolution); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleHistory(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	history, err := s.engine.GetProjectHistory(c.Request().Context(), req.ProjectID)
	if err != nil {
		return fail(c, err)
	}

	return data(c, history)
}

func (s *Server) handleRestore(c echo.Context) error {
	req, err := bind[restoreRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.RestoreSnapshot(c.Request().Context(), req.SnapshotID); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleUploadAsset(c echo.Context) error {
	req, err := bind[uploadRequest](c)
	if err != nil {
		return fail(c, err)
	}

	handle, err := s.engine.UploadAsset(c.Request().Context(), req.ProjectID, req.AssetPath)
	if err != nil {
		return fail(c, err)
	}

	return data(c, handle)
}

func (s *Server) handleDownloadAsset(c echo.Context) error {
	req, err := bind[downloadRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.DownloadAsset(c.Request().Context(), req.CDNURL, req.LocalPath); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

func (s *Server) handleStatus(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	status, found := s.engine.GetStatus(req.ProjectID)
	if !found {
		return data(c, nil)
	}

	return data(c, status)
}

func (s *Server) handleSession(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	session, found := s.engine.GetCollaborationSession(req.ProjectID)
	if !found {
		return data(c, nil)
	}

	return data(c, session)
}

func (s *Server) handleWatch(c echo.Context) error {
	req, err := bind[projectRequest](c)
	if err != nil {
		return fail(c, err)
	}

	if err := s.engine.Watch(req.ProjectID); err != nil {
		return fail(c, err)
	}

	return ok(c)
}

// handleEvents streams a subscription's changes until the subscription is
// removed or the client goes away.
func (s *Server) handleEvents(c echo.Context) error {
	id := c.QueryParam("subscriptionId")
	sub, found := s.engine.Subscription(id)
	if !found {
		return c.JSON(http.StatusNotFound, Envelope{
			Error: "subscription " + id + " not found",
			Kind:  string(syncerr.KindNotFound),
		})
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed",
			zap.String("subscription_id", id),
			zap.Error(err))
		return nil
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	ctx := conn.CloseRead(context.Background())

	logger.Log.Debug("event stream opened",
		zap.String("subscription_id", id))

	for {
		select {
		case <-ctx.Done():
			return nil

		case change, open := <-sub.Changes():
			if !open {
				_ = conn.Close(websocket.StatusNormalClosure, "unsubscribed")
				return nil
			}

			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ChangeEvent{
				Type:           EventChangeReceived,
				SubscriptionID: id,
				Change:         change,
			})
			cancel()

			if err != nil {
				logger.Log.Debug("event stream closed",
					zap.String("subscription_id", id),
					zap.Error(err))
				return nil
			}
		}
	}
}
