package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"donation-backend/internal/models"
)

// ErrNotFound returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// IntentRepository persistence for payment intents. Status changes go through
// TransitionStatus so every writer races on the same conditional update.
type IntentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	// FindOpenByDeposit returns non-terminal intents watching an address
	FindOpenByDeposit(ctx context.Context, networkID, depositAddress string) ([]models.PaymentIntent, error)
	ListByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error)
	// TransitionStatus conditionally moves an intent from one of the given
	// states to the target, applying extra column updates in the same
	// statement. Returns false when the intent was not in an allowed state.
	TransitionStatus(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus, updates map[string]interface{}) (bool, error)
	// ExpireDue moves overdue created/detecting intents to expired
	ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error)
}

type gormIntentRepository struct {
	db *gorm.DB
}

// NewIntentRepository creates a gorm-backed intent repository
func NewIntentRepository(db *gorm.DB) IntentRepository {
	return &gormIntentRepository{db: db}
}

func (r *gormIntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *gormIntentRepository) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (r *gormIntentRepository) FindOpenByDeposit(ctx context.Context, networkID, depositAddress string) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("network_id = ? AND deposit_address = ? AND status IN ?",
			networkID, depositAddress,
			[]models.IntentStatus{models.IntentStatusCreated, models.IntentStatusDetecting, models.IntentStatusConfirming}).
		Order("created_at ASC").
		Find(&intents).Error
	return intents, err
}

func (r *gormIntentRepository) ListByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&intents).Error
	return intents, err
}

func (r *gormIntentRepository) TransitionStatus(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormIntentRepository) ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error) {
	// Postgres has no UPDATE ... LIMIT, so select the batch by id first
	sub := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Select("id").
		Where("status IN ? AND expires_at <= ?",
			[]models.IntentStatus{models.IntentStatusCreated, models.IntentStatusDetecting}, now).
		Limit(limit)

	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id IN (?)", sub).
		Updates(map[string]interface{}{
			"status":        models.IntentStatusExpired,
			"reject_reason": "expired before a matching transaction was confirmed",
		})
	return res.RowsAffected, res.Error
}
