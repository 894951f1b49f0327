package errors

// 공통 에러 코드 정의
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrConflict        = "CONFLICT"

	// 결제 관련 에러 코드
	ErrPaymentDeclined = "PAYMENT_DECLINED"
	// 결제사 응답 없음. 결과를 알 수 없으므로 재시도 대상입니다
	ErrUnavailable = "UNAVAILABLE"
	// 결제는 완료됐지만 이행이 끝나지 않은 상태
	ErrInconsistent = "INCONSISTENT_STATE"
)
