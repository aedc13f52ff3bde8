package service

import (
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"math/rand"

	"gorm.io/gorm"
)

// ReviewService 复习会话状态机。
// 会话按 (用户, 考试) 唯一，薄弱知识点队列在创建时固定，
// Advance 前移游标，Jump 在队列内任意跳转，游标越界即完成。
type ReviewService struct {
	ProgressRepo *repository.ReviewProgressRepository
	ExamRepo     *repository.ExamResultRepository
	QuestionRepo *repository.QuestionRepository
}

func NewReviewService(progressRepo *repository.ReviewProgressRepository, examRepo *repository.ExamResultRepository, questionRepo *repository.QuestionRepository) *ReviewService {
	return &ReviewService{
		ProgressRepo: progressRepo,
		ExamRepo:     examRepo,
		QuestionRepo: questionRepo,
	}
}

type ReviewStateResp struct {
	Progress          *model.ReviewProgress `json:"progress"`
	CurrentPoint      string                `json:"currentPoint,omitempty"`
	PracticeQuestions []model.Question      `json:"practiceQuestions,omitempty"`
}

// GetProgress 查询既有进度，没有则返回 nil（不隐式创建）
func (s *ReviewService) GetProgress(userID uint, examID string) (*model.ReviewProgress, error) {
	progress, err := s.ProgressRepo.FindByUserAndExam(userID, examID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return progress, nil
}

// CreateProgress 显式创建复习进度，已存在则报冲突
func (s *ReviewService) CreateProgress(userID uint, examID string, queue []string) (*model.ReviewProgress, error) {
	if _, err := s.ProgressRepo.FindByUserAndExam(userID, examID); err == nil {
		return nil, util.ErrProgressExists
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	exam, err := s.ExamRepo.FindByIDAndUser(examID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if len(queue) == 0 {
		queue = weakPointQueue(exam)
	}

	progress := &model.ReviewProgress{
		UserID:              userID,
		ExamResultID:        examID,
		KnowledgePointQueue: queue,
		CurrentIndex:        0,
		CompletedPoints:     []string{},
		PracticeRecords:     map[string]json.RawMessage{},
		// 没有薄弱知识点（如全对的考试）就没有可复习的内容
		IsCompleted: len(queue) == 0,
	}
	if err := s.ProgressRepo.Create(progress); err != nil {
		// 唯一索引兜底：并发下另一请求先建成功
		if _, ferr := s.ProgressRepo.FindByUserAndExam(userID, examID); ferr == nil {
			return nil, util.ErrProgressExists
		}
		return nil, err
	}
	return progress, nil
}

// StartOrResume 开始或续上复习：没有进度则按薄弱知识点创建，
// 否则从持久化的游标继续，并为当前知识点抽取练习题。
func (s *ReviewService) StartOrResume(userID uint, examID string) (*ReviewStateResp, error) {
	progress, err := s.findOrCreate(userID, examID)
	if err != nil {
		return nil, err
	}

	return s.stateWithQuestions(userID, progress)
}

// findOrCreate 读进度，没有则创建；并发创建输掉唯一索引竞争时改读赢家的行
func (s *ReviewService) findOrCreate(userID uint, examID string) (*model.ReviewProgress, error) {
	progress, err := s.ProgressRepo.FindByUserAndExam(userID, examID)
	if err == gorm.ErrRecordNotFound {
		progress, err = s.CreateProgress(userID, examID, nil)
		if err == util.ErrProgressExists {
			progress, err = s.ProgressRepo.FindByUserAndExam(userID, examID)
		}
	}
	return progress, err
}

type AdvanceReq struct {
	KnowledgePoint string          `json:"knowledgePoint"`
	Answers        json.RawMessage `json:"answers"`
}

// Advance 完成当前知识点并前移游标。重复提交同一目标状态是安全的。
func (s *ReviewService) Advance(userID uint, examID string, req AdvanceReq) (*ReviewStateResp, error) {
	progress, err := s.findProgress(userID, examID)
	if err != nil {
		return nil, err
	}

	// 已完成的会话只读
	if progress.IsCompleted {
		return &ReviewStateResp{Progress: progress}, nil
	}

	// 游标可能被部分更新推到队列外，按已完成收口
	if progress.CurrentIndex >= len(progress.KnowledgePointQueue) {
		progress.IsCompleted = true
		if err := s.ProgressRepo.Save(progress); err != nil {
			return nil, err
		}
		return &ReviewStateResp{Progress: progress}, nil
	}

	current := progress.KnowledgePointQueue[progress.CurrentIndex]

	if !contains(progress.CompletedPoints, current) {
		progress.CompletedPoints = append(progress.CompletedPoints, current)
	}
	if req.Answers != nil {
		if progress.PracticeRecords == nil {
			progress.PracticeRecords = map[string]json.RawMessage{}
		}
		progress.PracticeRecords[current] = req.Answers
	}

	progress.CurrentIndex++
	progress.IsCompleted = progress.CurrentIndex >= len(progress.KnowledgePointQueue)

	if err := s.ProgressRepo.Save(progress); err != nil {
		return nil, err
	}

	return s.stateWithQuestions(userID, progress)
}

// Jump 把游标移动到队列中的任意知识点。不在队列内的知识点
// 从未出错，不可复习，直接原样返回当前状态。
func (s *ReviewService) Jump(userID uint, examID string, point string) (*ReviewStateResp, error) {
	// Jump 也承担首次开始的职责
	progress, err := s.findOrCreate(userID, examID)
	if err != nil {
		return nil, err
	}

	if progress.IsCompleted {
		return &ReviewStateResp{Progress: progress}, nil
	}

	target := -1
	for i, p := range progress.KnowledgePointQueue {
		if p == point {
			target = i
			break
		}
	}
	if target < 0 {
		return s.stateWithQuestions(userID, progress)
	}

	progress.CurrentIndex = target
	if err := s.ProgressRepo.Save(progress); err != nil {
		return nil, err
	}

	return s.stateWithQuestions(userID, progress)
}

type UpdateProgressReq struct {
	CurrentIndex    *int                        `json:"currentIndex"`
	CompletedPoints *[]string                   `json:"completedPoints"`
	PracticeRecords *map[string]json.RawMessage `json:"practiceRecords"`
	IsCompleted     *bool                       `json:"isCompleted"`
}

// UpdateProgress 部分更新：请求里带哪个字段就覆盖哪个字段
func (s *ReviewService) UpdateProgress(userID uint, id string, req UpdateProgressReq) (*model.ReviewProgress, error) {
	if _, err := s.ProgressRepo.FindByIDAndUser(id, userID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrProgressNotFound
		}
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.CurrentIndex != nil {
		fields["current_index"] = *req.CurrentIndex
	}
	if req.CompletedPoints != nil {
		fields["completed_points"] = *req.CompletedPoints
	}
	if req.PracticeRecords != nil {
		fields["practice_records"] = *req.PracticeRecords
	}
	if req.IsCompleted != nil {
		fields["is_completed"] = *req.IsCompleted
	}

	if len(fields) > 0 {
		if err := s.ProgressRepo.UpdateFields(id, fields); err != nil {
			return nil, err
		}
	}

	return s.ProgressRepo.FindByIDAndUser(id, userID)
}

// SamplePracticeQuestions 每个难度档抽一道：在符合知识点、类别、科目
// 且不在排除列表内的候选题里均匀随机挑选；某档没有候选就不出题。
func (s *ReviewService) SamplePracticeQuestions(knowledgePoint, category, subject string, excludeIDs []uint) ([]model.Question, error) {
	tiers := []string{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}

	sampled := make([]model.Question, 0, len(tiers))
	for _, tier := range tiers {
		candidates, err := s.QuestionRepo.FindCandidates(knowledgePoint, category, subject, tier, excludeIDs)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}
		sampled = append(sampled, candidates[rand.Intn(len(candidates))])
	}

	return sampled, nil
}

func (s *ReviewService) findProgress(userID uint, examID string) (*model.ReviewProgress, error) {
	progress, err := s.ProgressRepo.FindByUserAndExam(userID, examID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrProgressNotFound
		}
		return nil, err
	}
	return progress, nil
}

// stateWithQuestions 组装当前状态；游标落在某知识点上时附带该点的练习题，
// 排除这场考试里该知识点做错过的原题
func (s *ReviewService) stateWithQuestions(userID uint, progress *model.ReviewProgress) (*ReviewStateResp, error) {
	resp := &ReviewStateResp{Progress: progress}
	if progress.IsCompleted || progress.CurrentIndex >= len(progress.KnowledgePointQueue) {
		return resp, nil
	}

	current := progress.KnowledgePointQueue[progress.CurrentIndex]
	resp.CurrentPoint = current

	exam, err := s.ExamRepo.FindByIDAndUser(progress.ExamResultID, userID)
	if err != nil {
		return nil, err
	}

	questions, err := s.SamplePracticeQuestions(current, exam.TestType, exam.Subject, wrongQuestionIDs(exam, current))
	if err != nil {
		return nil, err
	}
	resp.PracticeQuestions = questions

	return resp, nil
}

// weakPointQueue 错题知识点按正确率升序排成复习队列
func weakPointQueue(exam *model.ExamResult) []string {
	queue := make([]string, 0)
	for _, analysis := range ComputeKnowledgePointAnalysis(exam.QuestionDetails) {
		if len(analysis.WrongQuestions) > 0 {
			queue = append(queue, analysis.KnowledgePoint)
		}
	}
	return queue
}

// wrongQuestionIDs 这场考试中某知识点做错的题目ID，用作练习抽题的排除集
func wrongQuestionIDs(exam *model.ExamResult, point string) []uint {
	ids := make([]uint, 0)
	for _, d := range exam.QuestionDetails {
		kp := d.KnowledgePoint
		if kp == "" {
			kp = UnclassifiedPoint
		}
		if !d.IsCorrect && kp == point {
			ids = append(ids, d.QuestionID)
		}
	}
	return ids
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
