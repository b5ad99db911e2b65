package engine

import (
	"context"
	"slices"
	"time"

	"modsync/internal/asset"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	InviteTTL  = 7 * 24 * time.Hour
	JoinedRole = "editor"
)

// ShareProject publishes an invite for projectID and opens its collaboration
// session.
func (e *Engine) ShareProject(ctx context.Context, projectID string, collaborators []string) (model.ShareResult, error) {
	if err := e.ready(); err != nil {
		return model.ShareResult{}, err
	}

	ws, err := e.workspace(projectID)
	if err != nil {
		return model.ShareResult{}, err
	}

	if !ws.Exists() {
		return model.ShareResult{}, syncerr.New(syncerr.KindProjectNotFound, "project %s has no local workspace", projectID)
	}

	m, err := ws.LoadManifest()
	if err != nil {
		return model.ShareResult{}, err
	}

	name := m.Name
	if name == "" {
		name = projectID
	}

	now := time.Now().UTC()
	invite := model.Invite{
		Code:          uuid.NewString(),
		ProjectID:     projectID,
		ProjectName:   name,
		Owner:         e.cfg.Author,
		Collaborators: slices.Compact(slices.Sorted(slices.Values(collaborators))),
		Permissions:   slices.Clone(model.DefaultPermissions),
		CreatedAt:     now,
		ExpiresAt:     now.Add(InviteTTL),
	}

	key, err := e.unlock(ws)
	if err != nil {
		return model.ShareResult{}, err
	}
	if key != "" {
		if invite.SealedKey, err = asset.SealKey(invite.Code, key); err != nil {
			return model.ShareResult{}, err
		}
	}

	if err := e.backend.PutInvite(ctx, invite); err != nil {
		return model.ShareResult{}, err
	}

	e.openSession(projectID, invite.Code, now, append([]string{e.cfg.Author}, invite.Collaborators...)...)

	logger.Log.Info("project shared",
		zap.String("project", projectID),
		zap.Strings("collaborators", invite.Collaborators),
		zap.Time("expires_at", invite.ExpiresAt))

	return model.ShareResult{
		ProjectID:   projectID,
		InviteCode:  invite.Code,
		SharedWith:  invite.Collaborators,
		ExpiresAt:   invite.ExpiresAt,
		Permissions: invite.Permissions,
	}, nil
}

// JoinProject redeems an invite and prepares an empty local workspace for
// the shared project, adopting the project key the invite carries. The files
// arrive with the next pull.
func (e *Engine) JoinProject(ctx context.Context, code string) (model.ProjectJoinResult, error) {
	if err := e.ready(); err != nil {
		return model.ProjectJoinResult{}, err
	}

	invite, err := e.backend.GetInvite(ctx, code)
	if err != nil {
		return model.ProjectJoinResult{}, err
	}

	now := time.Now().UTC()
	if invite.Expired(now) {
		return model.ProjectJoinResult{}, syncerr.Wrap(syncerr.KindInviteExpired, syncerr.ErrInviteExpired,
			"invite for %s expired at %s", invite.ProjectName, invite.ExpiresAt.Format(time.RFC3339))
	}

	ws, err := e.workspace(invite.ProjectID)
	if err != nil {
		return model.ProjectJoinResult{}, err
	}

	var key string
	if invite.SealedKey != "" {
		if key, err = asset.OpenKey(code, invite.SealedKey); err != nil {
			return model.ProjectJoinResult{}, err
		}
	}

	if err := ws.Ensure(); err != nil {
		return model.ProjectJoinResult{}, err
	}

	if key != "" {
		if err := e.adoptKey(ws, key); err != nil {
			return model.ProjectJoinResult{}, err
		}
	}

	m, err := ws.LoadManifest()
	if err != nil {
		return model.ProjectJoinResult{}, err
	}
	if m.Name == "" {
		m.Name = invite.ProjectName
		if err := ws.SaveManifest(m); err != nil {
			return model.ProjectJoinResult{}, err
		}
	}

	e.openSession(invite.ProjectID, invite.Code, now, invite.Owner, e.cfg.Author)

	logger.Log.Info("project joined",
		zap.String("project", invite.ProjectID),
		zap.String("owner", invite.Owner))

	return model.ProjectJoinResult{
		ProjectID:   invite.ProjectID,
		ProjectName: invite.ProjectName,
		Role:        JoinedRole,
		Permissions: invite.Permissions,
		JoinedAt:    now,
	}, nil
}

func (e *Engine) openSession(projectID, code string, at time.Time, participants ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[projectID]
	if !ok {
		s = &model.CollaborationSession{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Status:    model.SessionActive,
		}
		e.sessions[projectID] = s
	}

	s.InviteCode = code
	s.LastActivity = at
	for _, p := range participants {
		if p != "" && !slices.Contains(s.Participants, p) {
			s.Participants = append(s.Participants, p)
		}
	}
}

// GetCollaborationSession returns a copy of the project's session, if any.
func (e *Engine) GetCollaborationSession(projectID string) (model.CollaborationSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[projectID]
	if !ok {
		return model.CollaborationSession{}, false
	}

	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.ActiveFiles = slices.Clone(s.ActiveFiles)
	return c, true
}
