package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type TestController struct {
	ExamService     *service.ExamService
	AnalysisService *service.AnalysisService
	ReviewService   *service.ReviewService
}

func NewTestController(examSvc *service.ExamService, analysisSvc *service.AnalysisService, reviewSvc *service.ReviewService) *TestController {
	return &TestController{
		ExamService:     examSvc,
		AnalysisService: analysisSvc,
		ReviewService:   reviewSvc,
	}
}

// @Summary 提交考试答卷
// @Description 评分并返回成绩。模拟考试且有错题时异步触发AI薄弱点分析。
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.SubmitTestReq true "答卷"
// @Success 200 {object} util.Response
// @Router /tests/submit [post]
func (c *TestController) SubmitTest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SubmitTestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.ExamService.SubmitTest(user.UserID, req)
	if err != nil {
		if err == util.ErrMissingSubmitParams || err == util.ErrAnswersLengthMismatch {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// @Summary 获取考试记录列表
// @Tags 考试模块
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Router /tests/records [get]
func (c *TestController) ListTestRecords(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	records, total, err := c.ExamService.ListTestRecords(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: records, Total: total, Page: page, Limit: limit})
}

// @Summary 获取考试详情
// @Description 含题目明细、知识点统计（正确率升序）、薄弱知识点和AI分析内容
// @Tags 考试模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /tests/detail/{id} [get]
func (c *TestController) GetTestDetail(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	detail, err := c.ExamService.GetTestDetail(user.UserID, ctx.Param("id"))
	if err != nil {
		if err == util.ErrExamNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, detail)
}

// @Summary 查询AI分析状态
// @Description 轮询接口：pending/processing 时客户端继续轮询，终态后停止
// @Tags 考试模块
// @Produce json
// @Security ApiKeyAuth
// @Param examId path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /tests/ai-analysis-status/{examId} [get]
func (c *TestController) GetAnalysisStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.ExamService.GetAnalysisStatus(ctx.Request.Context(), user.UserID, ctx.Param("examId"))
	if err != nil {
		if err == util.ErrExamNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, status)
}

// @Summary 重新触发AI分析
// @Description 整场重跑，结果按 (考试, 知识点) 覆盖写入
// @Tags 考试模块
// @Produce json
// @Security ApiKeyAuth
// @Param examId path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /tests/ai-analysis-retry/{examId} [post]
func (c *TestController) RetryAnalysis(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	examID := ctx.Param("examId")
	if err := c.AnalysisService.Retry(user.UserID, examID); err != nil {
		switch err {
		case util.ErrExamNotFound:
			util.NotFound(ctx)
		case util.ErrAnalysisInProgress:
			util.Conflict(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"examId": examID})
}

// @Summary 查询复习进度
// @Tags 复习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /tests/review-progress/{id} [get]
func (c *TestController) GetReviewProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.ReviewService.GetProgress(user.UserID, ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	// 不存在时 data 为 null，由客户端决定是否开始复习
	util.Success(ctx, progress)
}

type createProgressReq struct {
	ExamID              string   `json:"examId" binding:"required"`
	KnowledgePointQueue []string `json:"knowledgePointQueue"`
}

// @Summary 创建复习进度
// @Description 队列为空时按该场考试的薄弱知识点（正确率升序）生成
// @Tags 复习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body createProgressReq true "复习队列"
// @Success 201 {object} util.Response
// @Router /tests/review-progress [post]
func (c *TestController) CreateReviewProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req createProgressReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	progress, err := c.ReviewService.CreateProgress(user.UserID, req.ExamID, req.KnowledgePointQueue)
	if err != nil {
		switch err {
		case util.ErrProgressExists:
			util.Conflict(ctx, err.Error())
		case util.ErrExamNotFound:
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, progress)
}

// @Summary 部分更新复习进度
// @Tags 复习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "进度ID"
// @Param body body service.UpdateProgressReq true "更新字段"
// @Success 200 {object} util.Response
// @Router /tests/review-progress/{id} [put]
func (c *TestController) UpdateReviewProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.UpdateProgressReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	progress, err := c.ReviewService.UpdateProgress(user.UserID, ctx.Param("id"), req)
	if err != nil {
		if err == util.ErrProgressNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, progress)
}

// @Summary 开始或继续复习
// @Description 没有进度则创建，有则从持久化游标继续，附当前知识点的练习题
// @Tags 复习模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Success 200 {object} util.Response
// @Router /tests/review-progress/{id}/start [post]
func (c *TestController) StartReview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.ReviewService.StartOrResume(user.UserID, ctx.Param("id"))
	if err != nil {
		if err == util.ErrExamNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, state)
}

// @Summary 完成当前知识点并前进
// @Tags 复习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Param body body service.AdvanceReq true "本知识点的练习作答"
// @Success 200 {object} util.Response
// @Router /tests/review-progress/{id}/advance [post]
func (c *TestController) AdvanceReview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.AdvanceReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.ReviewService.Advance(user.UserID, ctx.Param("id"), req)
	if err != nil {
		if err == util.ErrProgressNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, state)
}

type jumpReq struct {
	KnowledgePoint string `json:"knowledgePoint" binding:"required"`
}

// @Summary 跳转到队列中的指定知识点
// @Description 不在队列内的知识点不可复习，直接返回当前状态
// @Tags 复习模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "考试ID"
// @Param body body jumpReq true "目标知识点"
// @Success 200 {object} util.Response
// @Router /tests/review-progress/{id}/jump [post]
func (c *TestController) JumpReview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req jumpReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.ReviewService.Jump(user.UserID, ctx.Param("id"), req.KnowledgePoint)
	if err != nil {
		if err == util.ErrExamNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, state)
}

// @Summary 按知识点抽取练习题
// @Description 每个难度档最多一题，排除指定题目ID
// @Tags 复习模块
// @Produce json
// @Security ApiKeyAuth
// @Param knowledgePoint query string true "知识点"
// @Param category query string false "试题类别"
// @Param subject query string false "科目"
// @Param excludeIds query string false "排除的题目ID，逗号分隔"
// @Success 200 {object} util.Response
// @Router /tests/practice-questions [get]
func (c *TestController) GetPracticeQuestions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	knowledgePoint := ctx.Query("knowledgePoint")
	if knowledgePoint == "" {
		util.BadRequest(ctx, "knowledgePoint is required")
		return
	}

	questions, err := c.ReviewService.SamplePracticeQuestions(
		knowledgePoint,
		ctx.Query("category"),
		ctx.Query("subject"),
		util.ParseUintList(ctx.Query("excludeIds")),
	)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, questions)
}
