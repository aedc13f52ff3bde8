package model

// 试题类别：模拟考试触发AI分析，基础练习不触发
const (
	TestTypeMock  = "mock"
	TestTypeBasic = "basic"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question 题库试题（单选题）
// swagger:model Question
type Question struct {
	BaseModel
	Category       string   `gorm:"size:20;index;not null" json:"category"` // mock / basic
	Subject        string   `gorm:"size:50;index" json:"subject"`
	Content        string   `gorm:"type:text;not null" json:"content"`
	Options        []string `gorm:"type:json;serializer:json" json:"options"`
	CorrectIndex   int      `gorm:"not null" json:"correctIndex"`
	KnowledgePoint string   `gorm:"size:100;index" json:"knowledgePoint"`
	Difficulty     string   `gorm:"size:20;index;default:'medium'" json:"difficulty"`
	Explanation    string   `gorm:"type:text" json:"explanation"`
	Illustration   string   `gorm:"size:500" json:"illustration"` // 配图URL，存外部CDN地址
}

func (Question) TableName() string {
	return "questions"
}
