package model

import "encoding/json"

// ReviewProgress 复习进度，每个 (用户, 考试) 至多一条。
// KnowledgePointQueue 在创建时固定（按正确率升序的薄弱知识点），之后不变；
// 推进复习只移动 CurrentIndex 并累加 CompletedPoints。
// swagger:model ReviewProgress
type ReviewProgress struct {
	UUIDBase
	UserID              uint                       `gorm:"uniqueIndex:idx_user_exam;not null" json:"userId"`
	ExamResultID        string                     `gorm:"type:varchar(36);uniqueIndex:idx_user_exam;not null" json:"examId"`
	KnowledgePointQueue []string                   `gorm:"type:json;serializer:json" json:"knowledgePointQueue"`
	CurrentIndex        int                        `gorm:"default:0" json:"currentIndex"`
	CompletedPoints     []string                   `gorm:"type:json;serializer:json" json:"completedPoints"`
	PracticeRecords     map[string]json.RawMessage `gorm:"type:json;serializer:json" json:"practiceRecords"`
	IsCompleted         bool                       `gorm:"default:false" json:"isCompleted"`
}

func (ReviewProgress) TableName() string {
	return "review_progresses"
}
