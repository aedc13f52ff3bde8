package repository

import (
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type ReviewProgressRepository struct {
	DB *gorm.DB
}

func NewReviewProgressRepository(db *gorm.DB) *ReviewProgressRepository {
	return &ReviewProgressRepository{DB: db}
}

func (r *ReviewProgressRepository) Create(progress *model.ReviewProgress) error {
	return r.DB.Create(progress).Error
}

func (r *ReviewProgressRepository) FindByUserAndExam(userID uint, examID string) (*model.ReviewProgress, error) {
	var progress model.ReviewProgress
	err := r.DB.First(&progress, "user_id = ? AND exam_result_id = ?", userID, examID).Error
	return &progress, err
}

func (r *ReviewProgressRepository) FindByIDAndUser(id string, userID uint) (*model.ReviewProgress, error) {
	var progress model.ReviewProgress
	err := r.DB.First(&progress, "id = ? AND user_id = ?", id, userID).Error
	return &progress, err
}

func (r *ReviewProgressRepository) Save(progress *model.ReviewProgress) error {
	return r.DB.Save(progress).Error
}

// UpdateFields 部分更新，只覆盖调用方给出的字段
func (r *ReviewProgressRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.DB.Model(&model.ReviewProgress{}).Where("id = ?", id).Updates(fields).Error
}
