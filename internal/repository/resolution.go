package repository

import (
	"errors"

	"modsync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResolutionRepository struct {
	db *gorm.DB
}

func NewResolutionRepository(db *gorm.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// Add records a resolution. A second record for the same conflict is ignored.
func (r *ResolutionRepository) Add(rec *model.ResolutionRecord) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

func (r *ResolutionRepository) Exists(conflictID string) (bool, error) {
	var rec model.ResolutionRecord
	err := r.db.Where("conflict_id = ?", conflictID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (r *ResolutionRepository) ListByProject(projectID string, n int) ([]model.ResolutionRecord, error) {
	var recs []model.ResolutionRecord
	return recs, r.db.
		Where("project_id = ?", projectID).
		Order("resolved_at desc").
		Limit(n).
		Find(&recs).Error
}
