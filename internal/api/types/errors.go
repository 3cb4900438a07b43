package types

import appErr "github.com/consultra/engine/pkg/errors"

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	code := string(appErr.CodeUnknown)
	if e, ok := err.(*appErr.AppError); ok {
		code = string(e.Code)
		return &APIError{Code: code, Message: e.Message}
	}
	return &APIError{Code: code, Message: err.Error()}
}

// HTTPStatus maps an error's code to an HTTP status.
func HTTPStatus(err error) int {
	if e, ok := err.(*appErr.AppError); ok {
		switch e.Code {
		case appErr.CodeInvalid:
			return 400
		case appErr.CodeUnauthorized:
			return 401
		case appErr.CodeNotFound:
			return 404
		case appErr.CodeConflict:
			return 409
		case appErr.CodeUnavailable:
			return 503
		case appErr.CodeDeadline:
			return 504
		}
	}
	return 500
}
