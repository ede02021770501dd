package schemas

import "errors"

// ErrorCode classifies failures so that callers, logs and the attempt history
// can reason about them without string matching on messages.
type ErrorCode string

const (
	CodeNone                      ErrorCode = ""
	CodeSessionNotStarted         ErrorCode = "SESSION_NOT_STARTED"
	CodePageCreationFailed        ErrorCode = "PAGE_CREATION_FAILED"
	CodeNavigationFailed          ErrorCode = "NAVIGATION_FAILED"
	CodeFormNotFound              ErrorCode = "FORM_NOT_FOUND"
	CodeCaptchaUnsolved           ErrorCode = "CAPTCHA_UNSOLVED"
	CodeResumeFileMissing         ErrorCode = "RESUME_FILE_MISSING"
	CodeSubmitButtonNotFound      ErrorCode = "SUBMIT_BUTTON_NOT_FOUND"
	CodeMappingServiceUnavailable ErrorCode = "MAPPING_SERVICE_UNAVAILABLE"
	CodeFieldFillFailed           ErrorCode = "FIELD_FILL_FAILED"
	CodeSubmissionUnconfirmed     ErrorCode = "SUBMISSION_UNCONFIRMED"
	CodeTimeout                   ErrorCode = "TIMEOUT"
	CodeUnknown                   ErrorCode = "UNKNOWN"
)

// Sentinel errors. Wrap them with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrSessionNotStarted         = errors.New("browser session not started")
	ErrPageCreationFailed        = errors.New("page creation failed")
	ErrNavigationFailed          = errors.New("navigation failed")
	ErrFormNotFound              = errors.New("application form not found")
	ErrCaptchaUnsolved           = errors.New("captcha unsolved")
	ErrResumeFileMissing         = errors.New("resume file missing")
	ErrSubmitButtonNotFound      = errors.New("submit button not found")
	ErrMappingServiceUnavailable = errors.New("semantic mapping service unavailable")
	ErrFieldFillFailed           = errors.New("field fill failed")
	ErrSubmissionUnconfirmed     = errors.New("submission unconfirmed")

	// ErrCaptchaUnsolvable is returned by a CaptchaSolver when the service gives a
	// definitive "cannot solve" answer. It is never retried.
	ErrCaptchaUnsolvable = errors.New("captcha reported unsolvable by solver")
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrSessionNotStarted, CodeSessionNotStarted},
	{ErrPageCreationFailed, CodePageCreationFailed},
	{ErrNavigationFailed, CodeNavigationFailed},
	{ErrFormNotFound, CodeFormNotFound},
	{ErrCaptchaUnsolved, CodeCaptchaUnsolved},
	{ErrCaptchaUnsolvable, CodeCaptchaUnsolved},
	{ErrResumeFileMissing, CodeResumeFileMissing},
	{ErrSubmitButtonNotFound, CodeSubmitButtonNotFound},
	{ErrMappingServiceUnavailable, CodeMappingServiceUnavailable},
	{ErrFieldFillFailed, CodeFieldFillFailed},
	{ErrSubmissionUnconfirmed, CodeSubmissionUnconfirmed},
}

// CodeOf returns the ErrorCode of the first taxonomy sentinel found in err's
// chain. Deadline errors map to CodeTimeout when no sentinel matches.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	if isDeadline(err) {
		return CodeTimeout
	}
	return CodeUnknown
}

func isDeadline(err error) bool {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}
