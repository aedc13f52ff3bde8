package service

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"math"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// UnclassifiedPoint 没有知识点标注的试题统一归入的分组
const UnclassifiedPoint = "未分类"

const statusCacheTTL = 10 * time.Minute

// analysisDispatcher 后台分析任务的投递口，由 AnalysisService 实现
type analysisDispatcher interface {
	Enqueue(examID string)
}

type ExamService struct {
	ExamRepo     *repository.ExamResultRepository
	QuestionRepo *repository.QuestionRepository
	Redis        *redis.Client
	dispatcher   analysisDispatcher
}

func NewExamService(examRepo *repository.ExamResultRepository, questionRepo *repository.QuestionRepository, rdb *redis.Client, dispatcher analysisDispatcher) *ExamService {
	return &ExamService{
		ExamRepo:     examRepo,
		QuestionRepo: questionRepo,
		Redis:        rdb,
		dispatcher:   dispatcher,
	}
}

type SubmitTestReq struct {
	TestType        string `json:"testType" binding:"required"`
	QuestionIDs     []uint `json:"questionIds" binding:"required"`
	Answers         []int  `json:"answers" binding:"required"`
	Subject         string `json:"subject"`
	DifficultyLevel string `json:"difficultyLevel"`
	DurationMinutes int    `json:"durationMinutes"`
}

type SubmitTestResp struct {
	ID         string `json:"id"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// SubmitTest 评分并落库。模拟考试且存在错题时，在成绩写入后异步触发AI分析。
func (s *ExamService) SubmitTest(userID uint, req SubmitTestReq) (*SubmitTestResp, error) {
	if req.TestType == "" || len(req.QuestionIDs) == 0 || len(req.Answers) == 0 {
		return nil, util.ErrMissingSubmitParams
	}
	if len(req.QuestionIDs) != len(req.Answers) {
		return nil, util.ErrAnswersLengthMismatch
	}

	questions, err := s.QuestionRepo.FindByIDs(req.QuestionIDs)
	if err != nil {
		return nil, err
	}

	details := make([]model.QuestionDetail, 0, len(req.QuestionIDs))
	score := 0
	hasWrong := false

	for i, qid := range req.QuestionIDs {
		q, ok := questions[qid]
		if !ok {
			// 题库中不存在的题目跳过，不计入总数
			continue
		}

		chosen := req.Answers[i]
		correct := chosen != model.UnansweredIndex && chosen == q.CorrectIndex
		if correct {
			score++
		} else {
			hasWrong = true
		}

		details = append(details, model.QuestionDetail{
			QuestionID:     q.ID,
			Content:        q.Content,
			Options:        q.Options,
			CorrectIndex:   q.CorrectIndex,
			ChosenIndex:    chosen,
			IsCorrect:      correct,
			KnowledgePoint: q.KnowledgePoint,
			Difficulty:     q.Difficulty,
			Explanation:    q.Explanation,
			Illustration:   q.Illustration,
		})
	}

	status := model.AnalysisPending
	if !hasWrong {
		status = model.AnalysisCompleted
	}

	result := &model.ExamResult{
		UserID:           userID,
		TestType:         req.TestType,
		Subject:          req.Subject,
		DifficultyLevel:  req.DifficultyLevel,
		DurationMinutes:  req.DurationMinutes,
		Score:            score,
		Total:            len(details),
		QuestionDetails:  details,
		AIAnalysisStatus: status,
	}

	if err := s.ExamRepo.Create(result); err != nil {
		return nil, err
	}

	// 只有模拟考试触发错题分析，基础练习不分析
	if req.TestType == model.TestTypeMock && hasWrong && s.dispatcher != nil {
		s.dispatcher.Enqueue(result.ID)
	}

	percentage := 0
	if result.Total > 0 {
		percentage = int(math.Round(float64(score) / float64(result.Total) * 100))
	}

	return &SubmitTestResp{
		ID:         result.ID,
		Score:      score,
		Total:      result.Total,
		Percentage: percentage,
	}, nil
}

// KnowledgePointAnalysis 按知识点聚合的答题统计，读取时计算，不落库
type KnowledgePointAnalysis struct {
	KnowledgePoint string                 `json:"knowledgePoint"`
	Total          int                    `json:"total"`
	Correct        int                    `json:"correct"`
	Accuracy       float64                `json:"accuracy"`
	WrongQuestions []model.QuestionDetail `json:"wrongQuestions"`
}

// ComputeKnowledgePointAnalysis 按知识点聚合答题明细，正确率升序、
// 同正确率保持首次出现顺序，复习队列和展示均复用该顺序。
func ComputeKnowledgePointAnalysis(details []model.QuestionDetail) []KnowledgePointAnalysis {
	order := make([]string, 0)
	byPoint := make(map[string]*KnowledgePointAnalysis)

	for _, d := range details {
		point := d.KnowledgePoint
		if point == "" {
			point = UnclassifiedPoint
		}

		entry, ok := byPoint[point]
		if !ok {
			entry = &KnowledgePointAnalysis{KnowledgePoint: point}
			byPoint[point] = entry
			order = append(order, point)
		}

		entry.Total++
		if d.IsCorrect {
			entry.Correct++
		} else {
			entry.WrongQuestions = append(entry.WrongQuestions, d)
		}
	}

	analyses := make([]KnowledgePointAnalysis, 0, len(order))
	for _, point := range order {
		entry := byPoint[point]
		entry.Accuracy = math.Round(float64(entry.Correct)/float64(entry.Total)*10000) / 100
		analyses = append(analyses, *entry)
	}

	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].Accuracy < analyses[j].Accuracy
	})

	return analyses
}

// WrongKnowledgePoints 去重后的错题知识点，保持提交中首次出错的顺序
func WrongKnowledgePoints(details []model.QuestionDetail) []string {
	seen := make(map[string]bool)
	points := make([]string, 0)
	for _, d := range details {
		if d.IsCorrect {
			continue
		}
		point := d.KnowledgePoint
		if point == "" {
			point = UnclassifiedPoint
		}
		if !seen[point] {
			seen[point] = true
			points = append(points, point)
		}
	}
	return points
}

type TestDetailResp struct {
	*model.ExamResult
	Percentage             int                                        `json:"percentage"`
	KnowledgePointAnalysis []KnowledgePointAnalysis                   `json:"knowledgePointAnalysis"`
	WrongKnowledgePoints   []string                                   `json:"wrongKnowledgePoints"`
	AIAnalysis             map[string]*model.KnowledgePointAIAnalysis `json:"aiAnalysis"`
}

func (s *ExamService) GetTestDetail(userID uint, examID string) (*TestDetailResp, error) {
	result, err := s.ExamRepo.FindByIDAndUser(examID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	analyses, err := s.ExamRepo.ListAIAnalyses(examID)
	if err != nil {
		return nil, err
	}

	aiAnalysis := make(map[string]*model.KnowledgePointAIAnalysis, len(analyses))
	for i := range analyses {
		aiAnalysis[analyses[i].KnowledgePoint] = &analyses[i]
	}

	percentage := 0
	if result.Total > 0 {
		percentage = int(math.Round(float64(result.Score) / float64(result.Total) * 100))
	}

	return &TestDetailResp{
		ExamResult:             result,
		Percentage:             percentage,
		KnowledgePointAnalysis: ComputeKnowledgePointAnalysis(result.QuestionDetails),
		WrongKnowledgePoints:   WrongKnowledgePoints(result.QuestionDetails),
		AIAnalysis:             aiAnalysis,
	}, nil
}

func (s *ExamService) ListTestRecords(userID uint, page, limit int) ([]model.ExamResult, int64, error) {
	return s.ExamRepo.ListByUser(userID, page, limit)
}

type AnalysisStatusResp struct {
	Status model.AnalysisStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
}

type cachedStatus struct {
	UserID uint                 `json:"userId"`
	Status model.AnalysisStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
}

func statusCacheKey(examID string) string {
	return "exam:ai_status:" + examID
}

// GetAnalysisStatus 轮询读路径：优先读Redis缓存，未命中回源数据库并回填。
// 纯读操作，客户端按固定间隔轮询直到终态。
func (s *ExamService) GetAnalysisStatus(ctx context.Context, userID uint, examID string) (*AnalysisStatusResp, error) {
	if s.Redis != nil {
		if val, err := s.Redis.Get(ctx, statusCacheKey(examID)).Result(); err == nil {
			var cached cachedStatus
			if json.Unmarshal([]byte(val), &cached) == nil && cached.UserID == userID {
				return &AnalysisStatusResp{Status: cached.Status, Error: cached.Error}, nil
			}
		}
	}

	result, err := s.ExamRepo.FindByIDAndUser(examID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if s.Redis != nil {
		payload, _ := json.Marshal(cachedStatus{
			UserID: result.UserID,
			Status: result.AIAnalysisStatus,
			Error:  result.AIAnalysisError,
		})
		s.Redis.Set(ctx, statusCacheKey(examID), payload, statusCacheTTL)
	}

	return &AnalysisStatusResp{
		Status: result.AIAnalysisStatus,
		Error:  result.AIAnalysisError,
	}, nil
}
