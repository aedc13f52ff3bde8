package model

// KnowledgePointAIAnalysis 单个薄弱知识点的AI分析结果。
// (exam_result_id, knowledge_point) 唯一，任务重跑时覆盖写入。
// swagger:model KnowledgePointAIAnalysis
type KnowledgePointAIAnalysis struct {
	BaseModel
	ExamResultID       string   `gorm:"type:varchar(36);uniqueIndex:idx_exam_kp;not null" json:"examResultId"`
	KnowledgePoint     string   `gorm:"size:100;uniqueIndex:idx_exam_kp;not null" json:"knowledgePoint"`
	SuggestedQuestions []string `gorm:"type:json;serializer:json" json:"suggestedQuestions"`
	Analysis           string   `gorm:"type:text" json:"analysis"`
	Advice             string   `gorm:"type:text" json:"advice"`
}

func (KnowledgePointAIAnalysis) TableName() string {
	return "knowledge_point_ai_analyses"
}
