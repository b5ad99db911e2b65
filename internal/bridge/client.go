package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/imroc/req/v3"
)

// Client talks to a running daemon's bridge.
type Client struct {
	baseURL string
	client  *req.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		client: req.C().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Minute).
			SetUserAgent("modsync-cli"),
	}
}

func (c *Client) call(ctx context.Context, channel string, body, out any) (Envelope, error) {
	var env Envelope

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&env).
		SetErrorResult(&env).
		Post(pathAPI + "/" + channel)
	if err != nil {
		return env, fmt.Errorf("bridge request failed: %s: %w", channel, err)
	}

	if resp.IsErrorState() && env.Error == "" {
		return env, fmt.Errorf("bridge error: %s: %d %s", channel, resp.StatusCode, strings.TrimSpace(resp.String()))
	}

	if !env.Success {
		return env, syncerr.New(syncerr.Kind(env.Kind), "%s", env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("failed to decode %s response: %w", channel, err)
		}
	}

	return env, nil
}

func (c *Client) SyncProject(ctx context.Context, projectID string, dir model.Direction) (model.SyncResult, error) {
	var result model.SyncResult
	_, err := c.call(ctx, ChannelSyncProject, syncRequest{ProjectID: projectID, Direction: dir}, &result)
	return result, err
}

func (c *Client) EnableAutoSync(ctx context.Context, projectID string, interval time.Duration) error {
	_, err := c.call(ctx, ChannelEnableAutoSync, autoSyncRequest{ProjectID: projectID, Interval: interval.Milliseconds()}, nil)
	return err
}

func (c *Client) DisableAutoSync(ctx context.Context, projectID string) (bool, error) {
	var disabled bool
	_, err := c.call(ctx, ChannelDisableAutoSync, projectRequest{ProjectID: projectID}, &disabled)
	return disabled, err
}

func (c *Client) ShareProject(ctx context.Context, projectID string, collaborators []string) (model.ShareResult, error) {
	var result model.ShareResult
	_, err := c.call(ctx, ChannelShareProject, shareRequest{ProjectID: projectID, Collaborators: collaborators}, &result)
	return result, err
}

func (c *Client) JoinProject(ctx context.Context, code string) (model.ProjectJoinResult, error) {
	var result model.ProjectJoinResult
	_, err := c.call(ctx, ChannelJoinProject, joinRequest{InviteCode: code}, &result)
	return result, err
}

func (c *Client) Broadcast(ctx context.Context, change model.ProjectChange) error {
	_, err := c.call(ctx, ChannelBroadcastChange, change, nil)
	return err
}

func (c *Client) Subscribe(ctx context.Context, projectID string, filters *model.ChangeFilters) (string, error) {
	env, err := c.call(ctx, ChannelSubscribeToChanges, subscribeRequest{ProjectID: projectID, Filters: filters}, nil)
	return env.SubscriptionID, err
}

func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	_, err := c.call(ctx, ChannelUnsubscribeFromChanges, unsubscribeRequest{SubscriptionID: id}, nil)
	return err
}

func (c *Client) DetectConflicts(ctx context.Context, projectID string) (ConflictReport, error) {
	var report ConflictReport
	_, err := c.call(ctx, ChannelDetectConflicts, projectRequest{ProjectID: projectID}, &report)
	return report, err
}

func (c *Client) ResolveConflict(ctx context.Context, conflict model.Conflict, res model.ConflictResolution) error {
	_, err := c.call(ctx, ChannelResolveConflict, resolveRequest{Conflict: conflict, Resolution: res}, nil)
	return err
}

func (c *Client) History(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error) {
	var history []model.ProjectSnapshot
	_, err := c.call(ctx, ChannelGetProjectHistory, projectRequest{ProjectID: projectID}, &history)
	return history, err
}

func (c *Client) RestoreSnapshot(ctx context.Context, snapshotID string) error {
	_, err := c.call(ctx, ChannelRestoreSnapshot, restoreRequest{SnapshotID: snapshotID}, nil)
	return err
}

func (c *Client) UploadAsset(ctx context.Context, projectID, path string) (model.CDNHandle, error) {
	var handle model.CDNHandle
	_, err := c.call(ctx, ChannelUploadAsset, uploadRequest{AssetPath: path, ProjectID: projectID}, &handle)
	return handle, err
}

func (c *Client) DownloadAsset(ctx context.Context, cdnURL, localPath string) error {
	_, err := c.call(ctx, ChannelDownloadAsset, downloadRequest{CDNURL: cdnURL, LocalPath: localPath}, nil)
	return err
}

// Status returns nil when the daemon has no status for the project.
func (c *Client) Status(ctx context.Context, projectID string) (*model.SyncStatus, error) {
	var status *model.SyncStatus
	_, err := c.call(ctx, ChannelGetStatus, projectRequest{ProjectID: projectID}, &status)
	return status, err
}

func (c *Client) Session(ctx context.Context, projectID string) (*model.CollaborationSession, error) {
	var session *model.CollaborationSession
	_, err := c.call(ctx, ChannelGetCollaborationSession, projectRequest{ProjectID: projectID}, &session)
	return session, err
}

func (c *Client) Watch(ctx context.Context, projectID string) error {
	_, err := c.call(ctx, ChannelWatchProject, projectRequest{ProjectID: projectID}, nil)
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post(pathStop)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}

	if resp.IsErrorState() {
		return fmt.Errorf("daemon refused to stop: %d", resp.StatusCode)
	}

	return nil
}

// Events streams change-received events for a subscription. The channel is
// closed when the stream ends.
func (c *Client) Events(ctx context.Context, subscriptionID string) (<-chan ChangeEvent, error) {
	u, err := url.Parse(c.baseURL + pathEvents)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.RawQuery = url.Values{"subscriptionId": {subscriptionID}}.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer func() {
			_ = conn.CloseNow()
		}()

		for {
			var event ChangeEvent
			if err := wsjson.Read(ctx, conn, &event); err != nil {
				return
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
