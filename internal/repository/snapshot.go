package repository

import (
	"errors"

	"modsync/internal/model"
	"modsync/internal/syncerr"

	"gorm.io/gorm"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Add(snap *model.ProjectSnapshot) error {
	return r.db.Create(snap).Error
}

func (r *SnapshotRepository) GetByID(id string) (model.ProjectSnapshot, error) {
	var snap model.ProjectSnapshot
	err := r.db.Where("id = ?", id).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, syncerr.Wrap(syncerr.KindNotFound, err, "snapshot %s not found", id)
	}

	return snap, err
}

// ListByProject returns the project's snapshots newest first.
func (r *SnapshotRepository) ListByProject(projectID string) ([]model.ProjectSnapshot, error) {
	var snaps []model.ProjectSnapshot
	return snaps, r.db.
		Where("project_id = ?", projectID).
		Order("timestamp desc").
		Order("version desc").
		Find(&snaps).Error
}

func (r *SnapshotRepository) Latest(projectID string) (model.ProjectSnapshot, bool, error) {
	var snap model.ProjectSnapshot
	err := r.db.
		Where("project_id = ?", projectID).
		Order("version desc").
		Order("timestamp desc").
		Limit(1).
		Find(&snap).Error
	if err != nil {
		return snap, false, err
	}

	return snap, snap.ID != "", nil
}
