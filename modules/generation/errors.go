package generation

import (
	"errors"
	"net/http"
)

// Error - 호출자에게 그대로 노출되는 도메인 에러
// 같은 Code끼리는 errors.Is로 비교된다.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withMessage - 같은 코드로 메시지만 바꾼 사본
func (e *Error) withMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Status: e.Status}
}

var (
	ErrBrandNotFound          = &Error{Code: "BRAND_NOT_FOUND", Message: "brand not found", Status: http.StatusNotFound}
	ErrProductNotFound        = &Error{Code: "PRODUCT_NOT_FOUND", Message: "product not found", Status: http.StatusNotFound}
	ErrConceptNotFound        = &Error{Code: "CONCEPT_NOT_FOUND", Message: "concept not found", Status: http.StatusNotFound}
	ErrGenerationNotFound     = &Error{Code: "GENERATION_NOT_FOUND", Message: "generation not found", Status: http.StatusNotFound}
	ErrBatchNotFound          = &Error{Code: "BATCH_NOT_FOUND", Message: "batch not found", Status: http.StatusNotFound}
	ErrInsufficientCredits    = &Error{Code: "INSUFFICIENT_CREDITS", Message: "not enough credits", Status: http.StatusPaymentRequired}
	ErrGenerationNotCompleted = &Error{Code: "GENERATION_NOT_COMPLETED", Message: "generation is not completed", Status: http.StatusConflict}
	ErrInvalidRequest         = &Error{Code: "INVALID_REQUEST", Message: "invalid request", Status: http.StatusBadRequest}
	ErrUnauthorized           = &Error{Code: "UNAUTHORIZED", Message: "missing user", Status: http.StatusUnauthorized}
	ErrEnqueueFailed          = &Error{Code: "ENQUEUE_FAILED", Message: "failed to schedule generation", Status: http.StatusServiceUnavailable}
	ErrInternal               = &Error{Code: "INTERNAL_ERROR", Message: "internal error", Status: http.StatusInternalServerError}
)

// asError - 도메인 에러가 아니면 INTERNAL_ERROR로 감싼다
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
