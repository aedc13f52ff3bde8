package database

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	seedQuestions(db)

	return db, nil
}

// Migrate 同步全部模型的表结构，测试库也复用同一份迁移
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Question{},
		&model.ExamResult{},
		&model.KnowledgePointAIAnalysis{},
		&model.ReviewProgress{},
	)
}

// seedQuestions 题库为空时插入少量示例题目，方便本地联调
func seedQuestions(db *gorm.DB) {
	var count int64
	db.Model(&model.Question{}).Count(&count)
	if count > 0 {
		return
	}

	defaults := []model.Question{
		{
			Category:       model.TestTypeMock,
			Subject:        "数学",
			Content:        "函数 f(x)=x^2 在 x=1 处的导数是多少？",
			Options:        []string{"0", "1", "2", "3"},
			CorrectIndex:   2,
			KnowledgePoint: "导数",
			Difficulty:     model.DifficultyEasy,
			Explanation:    "f'(x)=2x，代入 x=1 得 2。",
		},
		{
			Category:       model.TestTypeMock,
			Subject:        "数学",
			Content:        "lim(x→0) sin(x)/x 的值是？",
			Options:        []string{"0", "1", "不存在", "∞"},
			CorrectIndex:   1,
			KnowledgePoint: "极限",
			Difficulty:     model.DifficultyMedium,
			Explanation:    "这是重要极限，值为 1。",
		},
		{
			Category:       model.TestTypeBasic,
			Subject:        "数学",
			Content:        "2+3 等于几？",
			Options:        []string{"4", "5", "6", "7"},
			CorrectIndex:   1,
			KnowledgePoint: "四则运算",
			Difficulty:     model.DifficultyEasy,
		},
	}

	for i := range defaults {
		db.Create(&defaults[i])
	}
}
