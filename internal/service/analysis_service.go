package service

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
)

// analysisJob 一次错题分析任务的描述符，经队列交给工作协程
type analysisJob struct {
	ExamID string
}

// AnalysisService 错题AI分析的后台编排器。
// 每场考试一个任务：pending → processing → completed/failed。
// 单个知识点调用失败只记日志并跳过，整体仍会走到 completed；
// 只有循环外的失败（考试加载、状态落库）才会进入 failed。
type AnalysisService struct {
	ExamRepo *repository.ExamResultRepository
	AI       *AIService
	Redis    *redis.Client

	jobs    chan analysisJob
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	once    sync.Once
}

func NewAnalysisService(examRepo *repository.ExamResultRepository, ai *AIService, rdb *redis.Client, cfg config.AnalysisConfig) *AnalysisService {
	s := &AnalysisService{
		ExamRepo: examRepo,
		AI:       ai,
		Redis:    rdb,
		jobs:     make(chan analysisJob, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

func (s *AnalysisService) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		s.runJob(job.ExamID)
	}
}

// Enqueue 投递任务，不阻塞提交请求：队列满或池已停止时降级为独立协程执行
func (s *AnalysisService) Enqueue(examID string) {
	job := analysisJob{ExamID: examID}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		logger.Log.Warn("分析工作池已停止，降级为独立协程执行", zap.String("examId", examID))
		go s.runJob(examID)
		return
	}
	select {
	case s.jobs <- job:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		logger.Log.Warn("分析任务队列已满，降级为独立协程执行", zap.String("examId", examID))
		go s.runJob(examID)
	}
}

// Stop 停止接收新任务并等待在跑任务结束。停止后的 Enqueue 不会panic。
func (s *AnalysisService) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.jobs)
	})
	s.wg.Wait()
}

// Retry 重新触发整场考试的分析。覆盖写入保证重跑不产生重复行。
func (s *AnalysisService) Retry(userID uint, examID string) error {
	result, err := s.ExamRepo.FindByIDAndUser(examID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return util.ErrExamNotFound
		}
		return err
	}

	if result.AIAnalysisStatus == model.AnalysisProcessing {
		return util.ErrAnalysisInProgress
	}

	if err := s.setStatus(examID, userID, model.AnalysisPending, ""); err != nil {
		return err
	}

	s.Enqueue(examID)
	return nil
}

// setStatus 持久化状态并同步轮询缓存
func (s *AnalysisService) setStatus(examID string, userID uint, status model.AnalysisStatus, errMsg string) error {
	if err := s.ExamRepo.UpdateAnalysisStatus(examID, status, errMsg); err != nil {
		return err
	}

	if s.Redis != nil {
		payload, _ := json.Marshal(cachedStatus{UserID: userID, Status: status, Error: errMsg})
		s.Redis.Set(context.Background(), statusCacheKey(examID), payload, statusCacheTTL)
	}

	return nil
}

func (s *AnalysisService) runJob(examID string) {
	result, err := s.ExamRepo.FindByID(examID)
	if err != nil {
		logger.Log.Error("分析任务加载考试失败", zap.String("examId", examID), zap.Error(err))
		s.failJob(examID, 0, fmt.Sprintf("load exam result: %v", err))
		return
	}

	if err := s.setStatus(examID, result.UserID, model.AnalysisProcessing, ""); err != nil {
		logger.Log.Error("分析任务状态更新失败", zap.String("examId", examID), zap.Error(err))
		s.failJob(examID, result.UserID, fmt.Sprintf("update status: %v", err))
		return
	}

	// 按知识点分组错题，保持首次出错顺序；知识点全对则不分析
	grouped := groupWrongByPoint(result.QuestionDetails)

	for _, group := range grouped {
		analysis, err := s.analyzePoint(result, group)
		if err != nil {
			// 单点失败跳过，用户侧表现为该知识点没有分析内容
			monitoring.OracleCallCounter.WithLabelValues("error").Inc()
			logger.Log.Warn("知识点AI分析失败，跳过",
				zap.String("examId", examID),
				zap.String("knowledgePoint", group.Point),
				zap.Error(err))
			continue
		}
		monitoring.OracleCallCounter.WithLabelValues("ok").Inc()

		if err := s.ExamRepo.UpsertAIAnalysis(analysis); err != nil {
			logger.Log.Warn("知识点分析结果写入失败，跳过",
				zap.String("examId", examID),
				zap.String("knowledgePoint", group.Point),
				zap.Error(err))
		}
	}

	if err := s.setStatus(examID, result.UserID, model.AnalysisCompleted, ""); err != nil {
		logger.Log.Error("分析任务完成状态写入失败", zap.String("examId", examID), zap.Error(err))
		monitoring.AnalysisJobCounter.WithLabelValues("failed").Inc()
		return
	}

	monitoring.AnalysisJobCounter.WithLabelValues("completed").Inc()
	logger.Log.Info("错题AI分析完成", zap.String("examId", examID), zap.Int("points", len(grouped)))
}

func (s *AnalysisService) failJob(examID string, userID uint, msg string) {
	monitoring.AnalysisJobCounter.WithLabelValues("failed").Inc()
	if err := s.setStatus(examID, userID, model.AnalysisFailed, msg); err != nil {
		logger.Log.Error("分析任务失败状态写入失败", zap.String("examId", examID), zap.Error(err))
	}
}

type wrongPointGroup struct {
	Point     string
	Questions []model.QuestionDetail
}

func groupWrongByPoint(details []model.QuestionDetail) []wrongPointGroup {
	order := make([]string, 0)
	byPoint := make(map[string][]model.QuestionDetail)

	for _, d := range details {
		if d.IsCorrect {
			continue
		}
		point := d.KnowledgePoint
		if point == "" {
			point = UnclassifiedPoint
		}
		if _, ok := byPoint[point]; !ok {
			order = append(order, point)
		}
		byPoint[point] = append(byPoint[point], d)
	}

	groups := make([]wrongPointGroup, 0, len(order))
	for _, point := range order {
		groups = append(groups, wrongPointGroup{Point: point, Questions: byPoint[point]})
	}
	return groups
}

// oraclePayload AI返回的结构化分析内容
type oraclePayload struct {
	SuggestedQuestions []string `json:"suggestedQuestions"`
	Analysis           string   `json:"analysis"`
	Advice             string   `json:"advice"`
}

const analysisSystemPrompt = "你是一位资深的考试辅导老师。根据学生在某个知识点上的错题，" +
	"输出一个JSON对象，包含三个字段：suggestedQuestions（字符串数组，2-3道预测追问题目）、" +
	"analysis（对错误原因的分析）、advice（针对性的学习建议）。只输出JSON，不要附加其他说明。"

func (s *AnalysisService) analyzePoint(result *model.ExamResult, group wrongPointGroup) (*model.KnowledgePointAIAnalysis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "科目：%s\n知识点：%s\n以下是学生做错的题目：\n\n", result.Subject, group.Point)

	for i, q := range group.Questions {
		fmt.Fprintf(&b, "第%d题：%s\n", i+1, q.Content)
		for j, opt := range q.Options {
			fmt.Fprintf(&b, "  %c. %s\n", 'A'+j, opt)
		}
		chosen := "未作答"
		if q.ChosenIndex >= 0 && q.ChosenIndex < len(q.Options) {
			chosen = string(rune('A' + q.ChosenIndex))
		}
		correct := ""
		if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			correct = string(rune('A' + q.CorrectIndex))
		}
		fmt.Fprintf(&b, "学生答案：%s，正确答案：%s\n", chosen, correct)
		if q.Explanation != "" {
			fmt.Fprintf(&b, "解析：%s\n", q.Explanation)
		}
		b.WriteString("\n")
	}

	answer, err := s.AI.Chat(b.String(), analysisSystemPrompt)
	if err != nil {
		return nil, err
	}

	payload, err := ExtractJSONPayload(answer)
	if err != nil {
		return nil, err
	}

	var parsed oraclePayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("parse oracle payload: %w", err)
	}

	return &model.KnowledgePointAIAnalysis{
		ExamResultID:       result.ID,
		KnowledgePoint:     group.Point,
		SuggestedQuestions: parsed.SuggestedQuestions,
		Analysis:           parsed.Analysis,
		Advice:             parsed.Advice,
	}, nil
}

// ExtractJSONPayload 从AI回答中提取JSON对象。
// 模型经常把JSON包在 ``` 围栏或说明文字里：优先取围栏内的内容，
// 否则取最外层成对的大括号。
func ExtractJSONPayload(answer string) (string, error) {
	if idx := strings.Index(answer, "```"); idx >= 0 {
		rest := answer[idx+3:]
		// 跳过围栏上的语言标记（如 ```json）
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine != "" && !strings.Contains(firstLine, "{") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		rest = strings.TrimSpace(rest)
		if rest != "" {
			return rest, nil
		}
	}

	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start >= 0 && end > start {
		return answer[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in oracle answer")
}
