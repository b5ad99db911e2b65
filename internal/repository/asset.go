package repository

import (
	"errors"

	"modsync/internal/model"
	"modsync/internal/syncerr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Upsert stores the handle, replacing an earlier upload of the same URL.
func (r *AssetRepository) Upsert(rec *model.AssetRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (r *AssetRepository) GetByURL(url string) (model.AssetRecord, error) {
	var rec model.AssetRecord
	err := r.db.Where("url = ?", url).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, syncerr.Wrap(syncerr.KindNotFound, err, "asset %s not registered", url)
	}

	return rec, err
}

func (r *AssetRepository) ListByProject(projectID string) ([]model.AssetRecord, error) {
	var recs []model.AssetRecord
	return recs, r.db.
		Where("project_id = ?", projectID).
		Order("uploaded_at desc").
		Find(&recs).Error
}
