// radiance/sources/psql/dao/dao.diagnosis_session.go
package dao

import (
	"context"
	"errors"

	"radiance/radiance/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAccessDenied is returned when a scoped write targets a session owned by
// a different user. The store adapter treats it as the one hard persistence
// failure worth a re-auth retry.
var ErrAccessDenied = errors.New("diagnosis session write rejected: owner mismatch")

type DiagnosisSessionDAO struct {
	DB *gorm.DB
}

func NewDiagnosisSessionDAO(db *gorm.DB) *DiagnosisSessionDAO {
	return &DiagnosisSessionDAO{DB: db}
}

func (dao *DiagnosisSessionDAO) NewSessionID() string {
	return uuid.New().String()
}

func (dao *DiagnosisSessionDAO) Create(ctx context.Context, session *models.DiagnosisSession) error {
	return dao.DB.WithContext(ctx).Create(session).Error
}

// UpdateFields performs a partial update of the named columns. When ownerID
// is non-zero the write is scoped to that owner; touching someone else's
// session yields ErrAccessDenied.
func (dao *DiagnosisSessionDAO) UpdateFields(ctx context.Context, id string, ownerID int, fields map[string]interface{}) error {
	tx := dao.DB.WithContext(ctx).Model(&models.DiagnosisSession{}).Where("id = ?", id)
	if ownerID != 0 {
		tx = tx.Where("user_id = ?", ownerID)
	}
	res := tx.Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := dao.DB.WithContext(ctx).Model(&models.DiagnosisSession{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAccessDenied
		}
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dao *DiagnosisSessionDAO) GetByID(ctx context.Context, id string) (*models.DiagnosisSession, error) {
	var session models.DiagnosisSession
	err := dao.DB.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (dao *DiagnosisSessionDAO) ListByUser(ctx context.Context, userID int) ([]models.DiagnosisSession, error) {
	var sessions []models.DiagnosisSession
	err := dao.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
