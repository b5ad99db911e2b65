package engine

import (
	"modsync/internal/asset"
	"modsync/internal/logger"
	"modsync/internal/workspace"

	"go.uber.org/zap"
)

// unlock loads the project's asset key into the pipeline and returns it. With
// encryption enabled the first node to touch a project creates its key; the
// others receive it when they join.
func (e *Engine) unlock(ws *workspace.Workspace) (string, error) {
	if !ws.Exists() {
		return "", nil
	}

	e.keyMu.Lock()
	defer e.keyMu.Unlock()

	m, err := ws.LoadManifest()
	if err != nil {
		return "", err
	}

	if m.Key == "" {
		if !e.cfg.EncryptionEnabled {
			return "", nil
		}

		if m.Key, err = asset.GenerateKey(); err != nil {
			return "", err
		}

		if err := ws.SaveManifest(m); err != nil {
			return "", err
		}

		logger.Log.Info("project key created",
			zap.String("project", ws.ProjectID()))
	}

	if err := e.pipeline.SetProjectKey(ws.ProjectID(), m.Key); err != nil {
		return "", err
	}

	return m.Key, nil
}

func (e *Engine) unlockProject(projectID string) error {
	ws, err := e.workspace(projectID)
	if err != nil {
		return err
	}

	_, err = e.unlock(ws)
	return err
}

// adoptKey replaces the project's asset key with one received from an invite.
func (e *Engine) adoptKey(ws *workspace.Workspace, key string) error {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()

	m, err := ws.LoadManifest()
	if err != nil {
		return err
	}

	if m.Key != key {
		if m.Key != "" {
			logger.Log.Warn("replacing project key with the one from the invite",
				zap.String("project", ws.ProjectID()))
		}

		m.Key = key
		if err := ws.SaveManifest(m); err != nil {
			return err
		}
	}

	return e.pipeline.SetProjectKey(ws.ProjectID(), key)
}
