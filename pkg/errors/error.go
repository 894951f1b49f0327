package errors

import (
	"errors"
	"fmt"
)

// 표준 라이브러리 함수 재노출
var (
	Is = errors.Is
	As = errors.As
)

// Coder는 자체 에러 코드를 제공하는 도메인 에러가 구현합니다
type Coder interface {
	Code() string
}

// AppError는 기본 에러 구현체입니다
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string {
	return e.code
}

// Message는 내부 에러를 제외한 사용자용 메시지를 반환합니다
func (e *AppError) Message() string {
	return e.message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewAppError는 새 애플리케이션 에러를 생성합니다
func NewAppError(code string, message string, err error) *AppError {
	return &AppError{
		code:    code,
		message: message,
		err:     err,
	}
}

// CodeOf는 에러 체인에서 첫 번째 에러 코드를 찾습니다. 없으면 ErrInternal 입니다
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Code()
	}

	var coder Coder
	if As(err, &coder) {
		return coder.Code()
	}

	return ErrInternal
}
