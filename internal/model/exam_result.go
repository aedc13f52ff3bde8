package model

// AnalysisStatus AI分析任务状态，只允许 pending → processing → completed/failed
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// UnansweredIndex 未作答的选项哨兵值
const UnansweredIndex = -1

// QuestionDetail 作答时的试题快照。题库后续修改不影响历史成绩，
// 因此这里冗余保存题目内容而不是引用题库行。
type QuestionDetail struct {
	QuestionID     uint     `json:"questionId"`
	Content        string   `json:"content"`
	Options        []string `json:"options"`
	CorrectIndex   int      `json:"correctIndex"`
	ChosenIndex    int      `json:"chosenIndex"` // -1 表示未作答
	IsCorrect      bool     `json:"isCorrect"`
	KnowledgePoint string   `json:"knowledgePoint,omitempty"`
	Difficulty     string   `json:"difficulty,omitempty"`
	Explanation    string   `json:"explanation,omitempty"`
	Illustration   string   `json:"illustration,omitempty"`
}

// ExamResult 一次提交的考试成绩。创建后除 AIAnalysisStatus / AIAnalysisError
// 外不再修改，修改方仅限后台分析任务。
// swagger:model ExamResult
type ExamResult struct {
	UUIDBase
	UserID           uint             `gorm:"index;not null" json:"userId"`
	TestType         string           `gorm:"size:20;index;not null" json:"testType"`
	Subject          string           `gorm:"size:50" json:"subject,omitempty"`
	DifficultyLevel  string           `gorm:"size:20" json:"difficultyLevel,omitempty"`
	DurationMinutes  int              `json:"durationMinutes,omitempty"`
	Score            int              `gorm:"not null" json:"score"`
	Total            int              `gorm:"not null" json:"total"`
	QuestionDetails  []QuestionDetail `gorm:"type:json;serializer:json" json:"questionDetails"`
	AIAnalysisStatus AnalysisStatus   `gorm:"size:20;default:'pending'" json:"aiAnalysisStatus"`
	AIAnalysisError  string           `gorm:"type:text" json:"aiAnalysisError,omitempty"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}
