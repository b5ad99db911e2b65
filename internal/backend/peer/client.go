package peer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"modsync/internal/syncerr"
)

const (
	scheme      = "peer://"
	dialTimeout = 10 * time.Second
)

// Client is an ObjectStore backed by a remote Server. It keeps one vector
// clock per state key, merged from every response.
type Client struct {
	addr   string
	nodeID string

	mu     sync.Mutex
	clocks map[string]*Vclock
}

func NewClient(addr, nodeID string) *Client {
	return &Client{
		addr:   addr,
		nodeID: nodeID,
		clocks: make(map[string]*Vclock),
	}
}

func (c *Client) clock(key string) *Vclock {
	c.mu.Lock()
	defer c.mu.Unlock()

	vc, ok := c.clocks[key]
	if !ok {
		vc = NewVclock()
		c.clocks[key] = vc
	}

	return vc
}

func (c *Client) roundTrip(ctx context.Context, msg Message) (Response, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Response{}, fmt.Errorf("failed to reach peer %s: %w", c.addr, err)
	}

	defer func(conn net.Conn) {
		_ = conn.Close()
	}(conn)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	msg.OriginID = c.nodeID
	w := bufio.NewWriter(conn)
	if err := WriteMessage(w, msg); err != nil {
		return Response{}, fmt.Errorf("failed to send to peer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return Response{}, fmt.Errorf("failed to send to peer: %w", err)
	}

	resp, err := ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read peer response: %w", err)
	}

	return resp, nil
}

func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, Message{Type: MessagePing})
	if err != nil {
		return err
	}

	if resp.Code != ResponseOK {
		return fmt.Errorf("peer ping failed: %s", resp.Msg)
	}

	return nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	msg := Message{Type: MessagePut, Key: key, Checksum: Checksum(data), Data: data}

	var vc *Vclock
	if isStateKey(key) {
		vc = c.clock(key)
		vc.Tick(c.nodeID)
		msg.VClock = vc.Snapshot()
	}

	resp, err := c.roundTrip(ctx, msg)
	if err != nil {
		return err
	}

	if vc != nil {
		vc.Merge(resp.VClock)
	}

	switch resp.Code {
	case ResponseOK:
		return nil
	case ResponseStale:
		return syncerr.Wrap(syncerr.KindStaleState, syncerr.ErrStaleState, "peer rejected %s: %s", key, resp.Msg)
	default:
		return fmt.Errorf("peer failed to store %s: %s", key, resp.Msg)
	}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.roundTrip(ctx, Message{Type: MessageGet, Key: key})
	if err != nil {
		return nil, err
	}

	switch resp.Code {
	case ResponseOK:
		if isStateKey(key) {
			c.clock(key).Merge(resp.VClock)
		}
		return resp.Data, nil
	case ResponseNotFound:
		return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
	default:
		return nil, fmt.Errorf("peer failed to read %s: %s", key, resp.Msg)
	}
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	resp, err := c.roundTrip(ctx, Message{Type: MessageList, Key: prefix})
	if err != nil {
		return nil, err
	}

	if resp.Code != ResponseOK {
		return nil, fmt.Errorf("peer failed to list %s: %s", prefix, resp.Msg)
	}

	if len(resp.Data) == 0 {
		return nil, nil
	}

	return strings.Split(string(resp.Data), "\n"), nil
}

func (c *Client) URL(key string) string {
	return scheme + c.addr + "/" + key
}

func (c *Client) ParseURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, scheme+c.addr+"/")
	if !ok {
		return "", fmt.Errorf("%s does not point at peer %s", url, c.addr)
	}

	return key, nil
}
