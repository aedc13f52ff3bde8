package repository

import (
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamResultRepository struct {
	DB *gorm.DB
}

func NewExamResultRepository(db *gorm.DB) *ExamResultRepository {
	return &ExamResultRepository{DB: db}
}

func (r *ExamResultRepository) Create(result *model.ExamResult) error {
	return r.DB.Create(result).Error
}

func (r *ExamResultRepository) FindByID(id string) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.First(&result, "id = ?", id).Error
	return &result, err
}

// FindByIDAndUser 归属校验读：考试不属于该用户时按未找到处理
func (r *ExamResultRepository) FindByIDAndUser(id string, userID uint) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.First(&result, "id = ? AND user_id = ?", id, userID).Error
	return &result, err
}

func (r *ExamResultRepository) ListByUser(userID uint, page, limit int) ([]model.ExamResult, int64, error) {
	var total int64
	if err := r.DB.Model(&model.ExamResult{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []model.ExamResult
	offset := (page - 1) * limit
	err := r.DB.Where("user_id = ?", userID).Omit("question_details").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&results).Error
	return results, total, err
}

// UpdateAnalysisStatus 只更新分析状态和错误信息，成绩字段不可变
func (r *ExamResultRepository) UpdateAnalysisStatus(id string, status model.AnalysisStatus, errMsg string) error {
	return r.DB.Model(&model.ExamResult{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"ai_analysis_status": status,
			"ai_analysis_error":  errMsg,
		}).Error
}

// UpsertAIAnalysis 按 (考试, 知识点) 覆盖写入，任务重跑不产生重复行
func (r *ExamResultRepository) UpsertAIAnalysis(analysis *model.KnowledgePointAIAnalysis) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exam_result_id"}, {Name: "knowledge_point"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"suggested_questions", "analysis", "advice", "updated_at",
		}),
	}).Create(analysis).Error
}

func (r *ExamResultRepository) ListAIAnalyses(examID string) ([]model.KnowledgePointAIAnalysis, error) {
	var analyses []model.KnowledgePointAIAnalysis
	err := r.DB.Where("exam_result_id = ?", examID).Find(&analyses).Error
	return analyses, err
}
