package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"donation-backend/internal/models"
)

// CampaignRepository persistence for fundraising campaigns
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]models.Campaign, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type gormCampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a gorm-backed campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &gormCampaignRepository{db: db}
}

func (r *gormCampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *gormCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *gormCampaignRepository) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&campaigns).Error
	return campaigns, err
}

func (r *gormCampaignRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
