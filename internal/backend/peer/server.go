// Package peer is the direct peer-to-peer backend: one node runs Server over
// a local directory and collaborators reach it with Client. Writes to a
// project's state.json must carry a vector clock that dominates the server's.
package peer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"path"
	"strings"
	"sync"

	"modsync/internal/backend/localfs"
	"modsync/internal/logger"
	"modsync/internal/syncerr"

	"go.uber.org/zap"
)

type Server struct {
	addr     string
	nodeID   string
	store    *localfs.Store
	listener net.Listener
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	clocks map[string]*Vclock
}

func NewServer(dataDir, addr, nodeID string) (*Server, error) {
	store, err := localfs.New(dataDir)
	if err != nil {
		return nil, err
	}

	if err := store.Connect(context.Background()); err != nil {
		return nil, err
	}

	return &Server{
		addr:   addr,
		nodeID: nodeID,
		store:  store,
		doneCh: make(chan struct{}),
		clocks: make(map[string]*Vclock),
	}, nil
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln

	logger.Log.Info("peer server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("data_dir", s.store.Root()),
		zap.String("node_id", s.nodeID))

	s.wg.Add(1)
	go s.accept()
	return nil
}

// Addr is the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

func (s *Server) Stop() {
	close(s.doneCh)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.doneCh:
				return
			default:
				logger.Log.Error("accept error", zap.Error(err))
				continue
			}
		}

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func(conn net.Conn) {
		_ = conn.Close()
	}(conn)

	msg, err := ReadMessage(bufio.NewReader(conn))
	if err != nil {
		logger.Log.Error("failed to read message", zap.Error(err))
		_ = WriteResponse(conn, Response{
			Code: ResponseErr,
			Msg:  err.Error(),
		})
		return
	}

	ctx := context.Background()
	var resp Response
	switch msg.Type {
	case MessagePut:
		resp = s.handlePut(ctx, msg)
	case MessageGet:
		resp = s.handleGet(ctx, msg)
	case MessageList:
		resp = s.handleList(ctx, msg)
	case MessagePing:
		resp = Response{Code: ResponseOK}
	default:
		resp = Response{
			Code: ResponseErr,
			Msg:  fmt.Sprintf("unknown message type: %d", msg.Type),
		}
	}

	if err := WriteResponse(conn, resp); err != nil {
		logger.Log.Warn("failed to write response",
			zap.String("key", msg.Key),
			zap.Error(err))
	}
}

func isStateKey(key string) bool {
	return strings.HasPrefix(key, "projects/") && path.Base(key) == "state.json"
}

func (s *Server) clock(key string) *Vclock {
	vc, ok := s.clocks[key]
	if !ok {
		vc = NewVclock()
		s.clocks[key] = vc
	}

	return vc
}

func (s *Server) handlePut(ctx context.Context, msg Message) Response {
	if !bytes.Equal(Checksum(msg.Data), msg.Checksum) {
		return Response{Code: ResponseErr, Msg: "checksum validation failed"}
	}

	if !isStateKey(msg.Key) {
		if err := s.store.Put(ctx, msg.Key, msg.Data); err != nil {
			return Response{Code: ResponseErr, Msg: err.Error()}
		}
		return Response{Code: ResponseOK}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vc := s.clock(msg.Key)
	if Compare(msg.VClock, vc.Snapshot()) != After {
		logger.Log.Info("rejecting stale state",
			zap.String("key", msg.Key),
			zap.String("origin", msg.OriginID))
		return Response{Code: ResponseStale, Msg: "state was updated by another peer", VClock: vc.Snapshot()}
	}

	if err := s.store.Put(ctx, msg.Key, msg.Data); err != nil {
		return Response{Code: ResponseErr, Msg: err.Error()}
	}

	vc.Merge(msg.VClock)
	vc.Tick(s.nodeID)

	logger.Log.Info("state stored",
		zap.String("key", msg.Key),
		zap.Int("size", len(msg.Data)),
		zap.String("origin", msg.OriginID))

	return Response{Code: ResponseOK, VClock: vc.Snapshot()}
}

func (s *Server) handleGet(ctx context.Context, msg Message) Response {
	data, err := s.store.Get(ctx, msg.Key)
	if syncerr.KindOf(err) == syncerr.KindNotFound {
		return Response{Code: ResponseNotFound, Msg: msg.Key}
	}
	if err != nil {
		return Response{Code: ResponseErr, Msg: err.Error()}
	}

	resp := Response{Code: ResponseOK, Data: data}
	if isStateKey(msg.Key) {
		s.mu.Lock()
		resp.VClock = s.clock(msg.Key).Snapshot()
		s.mu.Unlock()
	}

	return resp
}

func (s *Server) handleList(ctx context.Context, msg Message) Response {
	keys, err := s.store.List(ctx, msg.Key)
	if err != nil {
		return Response{Code: ResponseErr, Msg: err.Error()}
	}

	return Response{Code: ResponseOK, Data: []byte(strings.Join(keys, "\n"))}
}
