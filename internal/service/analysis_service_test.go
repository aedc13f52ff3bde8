package service

import (
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOracle 模拟OpenAI兼容接口。failPoints 中的知识点返回500。
func fakeOracle(t *testing.T, failPoints ...string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for _, p := range failPoints {
			if strings.Contains(string(body), "知识点："+p) {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		content := `{"suggestedQuestions":["追问一","追问二"],"analysis":"概念理解有偏差","advice":"回顾定义并重做错题"}`
		resp := ChatCompletionResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message AIChatMessage `json:"message"`
		}{Message: AIChatMessage{Role: "assistant", Content: content}})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestRunJob_Completed(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	oracle := fakeOracle(t)
	defer oracle.Close()

	ai := NewAIService(config.AIConfig{BaseURL: oracle.URL, Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, testAnalysisConfig())
	defer svc.Stop()

	exam := seedExam(t, db, 7, []model.QuestionDetail{
		wrongDetail(1, "导数"),
		wrongDetail(2, "导数"),
		wrongDetail(3, "极限"),
		correctDetail(4, "积分"),
	})

	svc.runJob(exam.ID)

	result, err := examRepo.FindByID(exam.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if result.AIAnalysisStatus != model.AnalysisCompleted {
		t.Fatalf("status = %s, want completed", result.AIAnalysisStatus)
	}

	rows, err := examRepo.ListAIAnalyses(exam.ID)
	if err != nil {
		t.Fatalf("ListAIAnalyses: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("analysis rows = %d, want 2 (one per wrong knowledge point)", len(rows))
	}
	for _, row := range rows {
		if row.Analysis == "" || row.Advice == "" || len(row.SuggestedQuestions) != 2 {
			t.Errorf("%s: incomplete payload persisted: %+v", row.KnowledgePoint, row)
		}
	}
}

func TestRunJob_PartialFailureStillCompletes(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	oracle := fakeOracle(t, "极限")
	defer oracle.Close()

	ai := NewAIService(config.AIConfig{BaseURL: oracle.URL, Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, testAnalysisConfig())
	defer svc.Stop()

	exam := seedExam(t, db, 7, []model.QuestionDetail{
		wrongDetail(1, "导数"),
		wrongDetail(2, "极限"),
	})

	svc.runJob(exam.ID)

	result, _ := examRepo.FindByID(exam.ID)
	if result.AIAnalysisStatus != model.AnalysisCompleted {
		t.Fatalf("status = %s, want completed despite one failed point", result.AIAnalysisStatus)
	}

	rows, _ := examRepo.ListAIAnalyses(exam.ID)
	if len(rows) != 1 || rows[0].KnowledgePoint != "导数" {
		t.Fatalf("rows = %+v, want single surviving 导数 row", rows)
	}
}

func TestRunJob_AllPointsFailStillCompletes(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	oracle := fakeOracle(t, "导数", "极限")
	defer oracle.Close()

	ai := NewAIService(config.AIConfig{BaseURL: oracle.URL, Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, testAnalysisConfig())
	defer svc.Stop()

	exam := seedExam(t, db, 7, []model.QuestionDetail{
		wrongDetail(1, "导数"),
		wrongDetail(2, "极限"),
	})

	svc.runJob(exam.ID)

	result, _ := examRepo.FindByID(exam.ID)
	if result.AIAnalysisStatus != model.AnalysisCompleted {
		t.Fatalf("status = %s, want completed", result.AIAnalysisStatus)
	}

	rows, _ := examRepo.ListAIAnalyses(exam.ID)
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestRunJob_MissingExamDoesNotPanic(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	ai := NewAIService(config.AIConfig{BaseURL: "http://127.0.0.1:0", Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, testAnalysisConfig())
	defer svc.Stop()

	// 不存在的考试：任务加载失败，不应panic
	svc.runJob("00000000-0000-0000-0000-000000000000")
}

func TestEnqueue_SafeAfterStop(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	oracle := fakeOracle(t)
	defer oracle.Close()

	ai := NewAIService(config.AIConfig{BaseURL: oracle.URL, Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, testAnalysisConfig())

	svc.Stop()

	// 停机窗口内还在处理的提交请求不能把进程打挂
	svc.Enqueue("00000000-0000-0000-0000-000000000000")
	svc.Stop()
}

func TestUpsertAIAnalysis_RerunOverwrites(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	exam := seedExam(t, db, 7, []model.QuestionDetail{wrongDetail(1, "导数")})

	first := &model.KnowledgePointAIAnalysis{
		ExamResultID:       exam.ID,
		KnowledgePoint:     "导数",
		SuggestedQuestions: []string{"旧追问"},
		Analysis:           "旧分析",
		Advice:             "旧建议",
	}
	if err := examRepo.UpsertAIAnalysis(first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &model.KnowledgePointAIAnalysis{
		ExamResultID:       exam.ID,
		KnowledgePoint:     "导数",
		SuggestedQuestions: []string{"新追问一", "新追问二"},
		Analysis:           "新分析",
		Advice:             "新建议",
	}
	if err := examRepo.UpsertAIAnalysis(second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := examRepo.ListAIAnalyses(exam.ID)
	if err != nil {
		t.Fatalf("ListAIAnalyses: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 (rerun must not duplicate)", len(rows))
	}
	if rows[0].Analysis != "新分析" || len(rows[0].SuggestedQuestions) != 2 {
		t.Fatalf("row = %+v, want latest content", rows[0])
	}
}

func TestRetry(t *testing.T) {
	db := newTestDB(t)
	examRepo, _, _ := newRepos(db)

	oracle := fakeOracle(t)
	defer oracle.Close()

	ai := NewAIService(config.AIConfig{BaseURL: oracle.URL, Model: "test"})
	svc := NewAnalysisService(examRepo, ai, nil, config.AnalysisConfig{Workers: 0, QueueSize: 4})
	defer svc.Stop()

	exam := seedExam(t, db, 7, []model.QuestionDetail{wrongDetail(1, "导数")})

	// 失败后的重试重置为pending并入队
	if err := examRepo.UpdateAnalysisStatus(exam.ID, model.AnalysisFailed, "oracle down"); err != nil {
		t.Fatalf("UpdateAnalysisStatus: %v", err)
	}
	if err := svc.Retry(7, exam.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	result, _ := examRepo.FindByID(exam.ID)
	if result.AIAnalysisStatus != model.AnalysisPending {
		t.Fatalf("status = %s, want pending after retry", result.AIAnalysisStatus)
	}
	if result.AIAnalysisError != "" {
		t.Fatalf("error = %q, want cleared", result.AIAnalysisError)
	}

	// 进行中的任务拒绝重试
	if err := examRepo.UpdateAnalysisStatus(exam.ID, model.AnalysisProcessing, ""); err != nil {
		t.Fatalf("UpdateAnalysisStatus: %v", err)
	}
	if err := svc.Retry(7, exam.ID); err != util.ErrAnalysisInProgress {
		t.Fatalf("err = %v, want ErrAnalysisInProgress", err)
	}

	// 他人的考试不可重试
	if err := svc.Retry(8, exam.ID); err != util.ErrExamNotFound {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestExtractJSONPayload(t *testing.T) {
	bare := `{"analysis":"a"}`

	tests := []struct {
		name    string
		answer  string
		want    string
		wantErr bool
	}{
		{
			name:   "bare json",
			answer: bare,
			want:   bare,
		},
		{
			name:   "json fenced with language tag",
			answer: "```json\n" + bare + "\n```",
			want:   bare,
		},
		{
			name:   "plain fence",
			answer: "```\n" + bare + "\n```",
			want:   bare,
		},
		{
			name:   "prose wrapped",
			answer: "好的，以下是分析结果：\n" + bare + "\n希望对你有帮助。",
			want:   bare,
		},
		{
			name:    "no json at all",
			answer:  "抱歉，我无法回答这个问题。",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSONPayload(tc.answer)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONPayload: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGroupWrongByPoint(t *testing.T) {
	details := []model.QuestionDetail{
		wrongDetail(1, "极限"),
		correctDetail(2, "导数"),
		wrongDetail(3, "导数"),
		wrongDetail(4, "极限"),
		wrongDetail(5, ""),
	}

	groups := groupWrongByPoint(details)

	want := []struct {
		point string
		count int
	}{
		{"极限", 2},
		{"导数", 1},
		{UnclassifiedPoint, 1},
	}

	if len(groups) != len(want) {
		t.Fatalf("groups = %d, want %d", len(groups), len(want))
	}
	for i, w := range want {
		if groups[i].Point != w.point || len(groups[i].Questions) != w.count {
			t.Errorf("group[%d] = %s/%d, want %s/%d",
				i, groups[i].Point, len(groups[i].Questions), w.point, w.count)
		}
	}
}
