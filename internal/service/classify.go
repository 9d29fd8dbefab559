package service

import (
	"encoding/json"
	"fmt"
	"net/http"

	"postflow/internal/transfer"
)

// ErrorCategory tags a remote publish failure. It is produced once, at the
// publisher boundary, and consumed downstream without re-reading raw codes.
type ErrorCategory string

const (
	CategoryDuplicateContent ErrorCategory = "duplicate_content"
	CategoryContentTooLong   ErrorCategory = "content_too_long"
	CategoryMissingParameter ErrorCategory = "missing_parameter"
	CategoryRateLimit        ErrorCategory = "rate_limit"
	CategoryInvalidToken     ErrorCategory = "invalid_token"
	CategoryAuthFailed       ErrorCategory = "auth_failed"
	CategorySuspended        ErrorCategory = "account_suspended"
	CategoryUnknown          ErrorCategory = "unknown"
)

type PublishError struct {
	Category   ErrorCategory
	Message    string
	StatusCode int
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Twitter v1.1 error codes that still surface through the write APIs.
const (
	codeAuthFailed       = 32
	codeMissingParameter = 38
	codeAccountSuspended = 64
	codeRateLimit        = 88
	codeInvalidToken     = 89
	codeTooLong          = 186
	codeDuplicate        = 187
)

// ClassifyResponse maps a non-success platform response to a tagged error.
// Unrecognized payloads fall through to CategoryUnknown with the raw message.
func ClassifyResponse(statusCode int, body []byte) *PublishError {
	if statusCode == http.StatusTooManyRequests {
		return &PublishError{
			Category:   CategoryRateLimit,
			Message:    "rate limit exceeded",
			StatusCode: statusCode,
		}
	}

	var parsed transfer.TwitterErrorBody
	_ = json.Unmarshal(body, &parsed)

	for _, apiErr := range parsed.Errors {
		if category, message := classifyCode(apiErr.Code, apiErr.Message); category != CategoryUnknown {
			return &PublishError{Category: category, Message: message, StatusCode: statusCode}
		}
	}

	message := parsed.Detail
	if message == "" {
		message = parsed.Title
	}
	if message == "" && len(parsed.Errors) > 0 {
		message = parsed.Errors[0].Message
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status code %d", statusCode)
	}

	return &PublishError{Category: CategoryUnknown, Message: message, StatusCode: statusCode}
}

func classifyCode(code int, raw string) (ErrorCategory, string) {
	switch code {
	case codeDuplicate:
		return CategoryDuplicateContent, "duplicate content: this post was already published"
	case codeTooLong:
		return CategoryContentTooLong, "content exceeds the maximum allowed length"
	case codeMissingParameter:
		return CategoryMissingParameter, "missing required parameter: " + raw
	case codeRateLimit:
		return CategoryRateLimit, "rate limit exceeded"
	case codeInvalidToken:
		return CategoryInvalidToken, "access token is invalid or has expired"
	case codeAuthFailed:
		return CategoryAuthFailed, "could not authenticate with the platform"
	case codeAccountSuspended:
		return CategorySuspended, "account is suspended and may not publish"
	}
	return CategoryUnknown, raw
}
