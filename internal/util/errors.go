package util

import "errors"

var (
	ErrUserNotFound          = errors.New("用户不存在")
	ErrEmailRegistered       = errors.New("该邮箱已被注册")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrExamNotFound          = errors.New("exam result not found")
	ErrProgressNotFound      = errors.New("review progress not found")
	ErrProgressExists        = errors.New("review progress already exists")
	ErrAnalysisInProgress    = errors.New("analysis job still in progress")
	ErrPointNotInQueue       = errors.New("knowledge point not in review queue")
	ErrMissingSubmitParams   = errors.New("testType, questionIds and answers are required")
	ErrAnswersLengthMismatch = errors.New("answers and questionIds must have the same length")
)
