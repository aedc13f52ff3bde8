package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"testing"
)

// fakeDispatcher 记录被投递的任务，替代真实的后台分析服务
type fakeDispatcher struct {
	enqueued []string
}

func (f *fakeDispatcher) Enqueue(examID string) {
	f.enqueued = append(f.enqueued, examID)
}

func TestSubmitTest_ScoreAndAnalysisTrigger(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	dispatcher := &fakeDispatcher{}
	svc := NewExamService(examRepo, questionRepo, nil, dispatcher)

	// 两个知识点各5题，正确答案都是选项1
	ids := make([]uint, 0, 10)
	for i := 0; i < 5; i++ {
		ids = append(ids, seedQuestion(t, db, "导数", model.DifficultyMedium, 1))
	}
	for i := 0; i < 5; i++ {
		ids = append(ids, seedQuestion(t, db, "极限", model.DifficultyMedium, 1))
	}

	// 每个知识点各错一题
	answers := []int{1, 1, 1, 1, 0, 1, 1, 1, 1, 2}

	resp, err := svc.SubmitTest(7, SubmitTestReq{
		TestType:    model.TestTypeMock,
		QuestionIDs: ids,
		Answers:     answers,
	})
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}

	if resp.Score != 8 || resp.Total != 10 || resp.Percentage != 80 {
		t.Fatalf("got score=%d total=%d percentage=%d, want 8/10/80", resp.Score, resp.Total, resp.Percentage)
	}

	result, err := examRepo.FindByID(resp.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if result.AIAnalysisStatus != model.AnalysisPending {
		t.Fatalf("status = %s, want pending", result.AIAnalysisStatus)
	}

	if len(dispatcher.enqueued) != 1 || dispatcher.enqueued[0] != resp.ID {
		t.Fatalf("dispatcher enqueued = %v, want [%s]", dispatcher.enqueued, resp.ID)
	}

	detail, err := svc.GetTestDetail(7, resp.ID)
	if err != nil {
		t.Fatalf("GetTestDetail: %v", err)
	}
	if len(detail.KnowledgePointAnalysis) != 2 {
		t.Fatalf("knowledge point analyses = %d, want 2", len(detail.KnowledgePointAnalysis))
	}
	for _, a := range detail.KnowledgePointAnalysis {
		if a.Total-a.Correct != 1 {
			t.Errorf("%s: total-correct = %d, want 1", a.KnowledgePoint, a.Total-a.Correct)
		}
	}
}

func TestSubmitTest_AllCorrectSkipsAnalysis(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	dispatcher := &fakeDispatcher{}
	svc := NewExamService(examRepo, questionRepo, nil, dispatcher)

	ids := make([]uint, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, seedQuestion(t, db, "导数", model.DifficultyEasy, 2))
	}

	resp, err := svc.SubmitTest(7, SubmitTestReq{
		TestType:    model.TestTypeMock,
		QuestionIDs: ids,
		Answers:     []int{2, 2, 2, 2, 2},
	})
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}

	if resp.Score != 5 || resp.Percentage != 100 {
		t.Fatalf("got score=%d percentage=%d, want 5/100", resp.Score, resp.Percentage)
	}

	result, _ := examRepo.FindByID(resp.ID)
	if result.AIAnalysisStatus != model.AnalysisCompleted {
		t.Fatalf("status = %s, want completed immediately", result.AIAnalysisStatus)
	}
	if len(dispatcher.enqueued) != 0 {
		t.Fatalf("no job should be dispatched, got %v", dispatcher.enqueued)
	}

	detail, _ := svc.GetTestDetail(7, resp.ID)
	if len(detail.WrongKnowledgePoints) != 0 {
		t.Fatalf("wrongKnowledgePoints = %v, want empty", detail.WrongKnowledgePoints)
	}
}

func TestSubmitTest_BasicTypeNeverDispatches(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	dispatcher := &fakeDispatcher{}
	svc := NewExamService(examRepo, questionRepo, nil, dispatcher)

	id := seedQuestion(t, db, "四则运算", model.DifficultyEasy, 1)

	resp, err := svc.SubmitTest(7, SubmitTestReq{
		TestType:    model.TestTypeBasic,
		QuestionIDs: []uint{id},
		Answers:     []int{0}, // 答错
	})
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	if resp.Score != 0 {
		t.Fatalf("score = %d, want 0", resp.Score)
	}
	if len(dispatcher.enqueued) != 0 {
		t.Fatalf("basic test must not dispatch analysis, got %v", dispatcher.enqueued)
	}
}

func TestSubmitTest_ValidationRejectsBeforeWrite(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	svc := NewExamService(examRepo, questionRepo, nil, nil)

	tests := []struct {
		name string
		req  SubmitTestReq
		want error
	}{
		{
			name: "missing question ids",
			req:  SubmitTestReq{TestType: model.TestTypeMock, Answers: []int{1}},
			want: util.ErrMissingSubmitParams,
		},
		{
			name: "missing answers",
			req:  SubmitTestReq{TestType: model.TestTypeMock, QuestionIDs: []uint{1}},
			want: util.ErrMissingSubmitParams,
		},
		{
			name: "length mismatch",
			req:  SubmitTestReq{TestType: model.TestTypeMock, QuestionIDs: []uint{1, 2}, Answers: []int{1}},
			want: util.ErrAnswersLengthMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitTest(7, tc.req); err != tc.want {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	var count int64
	db.Model(&model.ExamResult{}).Count(&count)
	if count != 0 {
		t.Fatalf("exam rows = %d, want 0 (validation must precede persistence)", count)
	}
}

func TestSubmitTest_UnknownQuestionSkipped(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	svc := NewExamService(examRepo, questionRepo, nil, nil)

	id1 := seedQuestion(t, db, "导数", model.DifficultyEasy, 0)
	id2 := seedQuestion(t, db, "导数", model.DifficultyEasy, 0)

	resp, err := svc.SubmitTest(7, SubmitTestReq{
		TestType:    model.TestTypeMock,
		QuestionIDs: []uint{id1, 99999, id2},
		Answers:     []int{0, 0, 0},
	})
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	if resp.Total != 2 || resp.Score != 2 {
		t.Fatalf("got score=%d total=%d, want 2/2 (unknown id excluded)", resp.Score, resp.Total)
	}
}

func TestComputeKnowledgePointAnalysis(t *testing.T) {
	details := []model.QuestionDetail{
		correctDetail(1, "导数"),
		wrongDetail(2, "导数"),
		wrongDetail(3, "极限"),
		wrongDetail(4, "极限"),
		correctDetail(5, ""), // 无知识点 → 未分类
	}

	analyses := ComputeKnowledgePointAnalysis(details)

	if len(analyses) != 3 {
		t.Fatalf("groups = %d, want 3", len(analyses))
	}

	// 正确率升序：极限 0% < 导数 50% < 未分类 100%
	wantOrder := []string{"极限", "导数", UnclassifiedPoint}
	sum := 0
	for i, a := range analyses {
		if a.KnowledgePoint != wantOrder[i] {
			t.Errorf("order[%d] = %s, want %s", i, a.KnowledgePoint, wantOrder[i])
		}
		if a.Correct > a.Total {
			t.Errorf("%s: correct %d > total %d", a.KnowledgePoint, a.Correct, a.Total)
		}
		if len(a.WrongQuestions) != a.Total-a.Correct {
			t.Errorf("%s: wrong questions = %d, want %d", a.KnowledgePoint, len(a.WrongQuestions), a.Total-a.Correct)
		}
		sum += a.Total
	}
	if sum != len(details) {
		t.Fatalf("sum of totals = %d, want %d", sum, len(details))
	}
}

func TestWrongKnowledgePoints_DedupAndOrder(t *testing.T) {
	details := []model.QuestionDetail{
		wrongDetail(1, "极限"),
		correctDetail(2, "导数"),
		wrongDetail(3, "导数"),
		wrongDetail(4, "极限"),
		wrongDetail(5, ""),
	}

	got := WrongKnowledgePoints(details)
	want := []string{"极限", "导数", UnclassifiedPoint}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestGetAnalysisStatus_OwnershipAndRead(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	svc := NewExamService(examRepo, questionRepo, nil, nil)

	exam := seedExam(t, db, 7, []model.QuestionDetail{wrongDetail(1, "导数")})

	status, err := svc.GetAnalysisStatus(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("GetAnalysisStatus: %v", err)
	}
	if status.Status != model.AnalysisPending {
		t.Fatalf("status = %s, want pending", status.Status)
	}

	// 他人的考试按未找到处理
	if _, err := svc.GetAnalysisStatus(context.Background(), 8, exam.ID); err != util.ErrExamNotFound {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestGetTestDetail_NotFoundForOtherUser(t *testing.T) {
	db := newTestDB(t)
	examRepo, questionRepo, _ := newRepos(db)
	svc := NewExamService(examRepo, questionRepo, nil, nil)

	exam := seedExam(t, db, 7, []model.QuestionDetail{wrongDetail(1, "导数")})

	if _, err := svc.GetTestDetail(8, exam.ID); err != util.ErrExamNotFound {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}
