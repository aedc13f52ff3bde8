package service

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	// 测试里也会打日志，避免全局logger为nil
	logger.Log = zap.NewNop()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

// seedQuestion 写入一道单选题并返回ID
func seedQuestion(t *testing.T, db *gorm.DB, knowledgePoint, difficulty string, correctIndex int) uint {
	t.Helper()

	q := &model.Question{
		Category:       model.TestTypeMock,
		Subject:        "数学",
		Content:        fmt.Sprintf("%s 练习题（%s）", knowledgePoint, difficulty),
		Options:        []string{"甲", "乙", "丙", "丁"},
		CorrectIndex:   correctIndex,
		KnowledgePoint: knowledgePoint,
		Difficulty:     difficulty,
		Explanation:    "解析略",
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q.ID
}

// seedExam 直接落一条考试成绩，绕过评分流程
func seedExam(t *testing.T, db *gorm.DB, userID uint, details []model.QuestionDetail) *model.ExamResult {
	t.Helper()

	score := 0
	for _, d := range details {
		if d.IsCorrect {
			score++
		}
	}

	status := model.AnalysisPending
	if score == len(details) {
		status = model.AnalysisCompleted
	}

	result := &model.ExamResult{
		UserID:           userID,
		TestType:         model.TestTypeMock,
		Subject:          "数学",
		Score:            score,
		Total:            len(details),
		QuestionDetails:  details,
		AIAnalysisStatus: status,
	}
	if err := db.Create(result).Error; err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return result
}

func wrongDetail(questionID uint, point string) model.QuestionDetail {
	return model.QuestionDetail{
		QuestionID:     questionID,
		Content:        point + " 的题目",
		Options:        []string{"甲", "乙", "丙", "丁"},
		CorrectIndex:   1,
		ChosenIndex:    0,
		IsCorrect:      false,
		KnowledgePoint: point,
		Difficulty:     model.DifficultyMedium,
	}
}

func correctDetail(questionID uint, point string) model.QuestionDetail {
	return model.QuestionDetail{
		QuestionID:     questionID,
		Content:        point + " 的题目",
		Options:        []string{"甲", "乙", "丙", "丁"},
		CorrectIndex:   1,
		ChosenIndex:    1,
		IsCorrect:      true,
		KnowledgePoint: point,
		Difficulty:     model.DifficultyMedium,
	}
}

func newRepos(db *gorm.DB) (*repository.ExamResultRepository, *repository.QuestionRepository, *repository.ReviewProgressRepository) {
	return repository.NewExamResultRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewReviewProgressRepository(db)
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{Workers: 1, QueueSize: 4}
}
