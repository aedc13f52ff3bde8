package repository

import (
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

// FindByIDs 批量查询试题，结果按主键索引成map，便于按提交顺序遍历
func (r *QuestionRepository) FindByIDs(ids []uint) (map[uint]*model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return map[uint]*model.Question{}, nil
	}
	if err := r.DB.Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	return byID, nil
}

// FindCandidates 查询某知识点、某难度下可用于练习的候选题。
// 随机抽取在服务层内存中完成，保证各方言下的均匀性。
func (r *QuestionRepository) FindCandidates(knowledgePoint, category, subject, difficulty string, excludeIDs []uint) ([]model.Question, error) {
	query := r.DB.Where("knowledge_point = ? AND difficulty = ?", knowledgePoint, difficulty)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}

	var questions []model.Question
	err := query.Find(&questions).Error
	return questions, err
}
