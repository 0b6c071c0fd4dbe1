package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "algojudge/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{SubmissionNotFound, "Submission not found"},
		{OutputLimitExceeded, "Output size exceeded limit"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{LanguageNotSupported, 400},
		{ValidationFailed, 400},
		{SubmissionNotFound, 404},
		{JudgeInProgress, 409},
		{CodeTooLarge, 413},
		{JudgeQueueFull, 429},
		{DatabaseError, 500},
		{SandboxUnavailable, 503},
		{Timeout, 504},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ToolchainNotFound, "compiler for %s not found", "cpp")
	if err.Error() != "compiler for cpp not found" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Code != ToolchainNotFound {
		t.Errorf("Code = %v", err.Code)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("wrapped error should unwrap to the original")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	inner := New(JudgeQueueFull)
	outer := fmt.Errorf("acquire slot: %w", inner)

	if got := GetCode(outer); got != JudgeQueueFull {
		t.Fatalf("GetCode() = %v, want %v", got, JudgeQueueFull)
	}
	if !Is(outer, JudgeQueueFull) {
		t.Fatal("Is() should see the code through fmt wrapping")
	}
	if GetError(outer) != inner {
		t.Fatal("GetError() should return the inner error")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(CodeEmpty), want: CodeEmpty},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(SubmissionNotFound)

	if !Is(err, SubmissionNotFound) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, SubmissionNotFound) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		if err := BadRequest("invalid input"); err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("submission")
		if err.Code != NotFound || err.Error() != "submission not found" {
			t.Errorf("unexpected error: %v %q", err.Code, err.Error())
		}
	})


	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("language", "unsupported")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "language" {
			t.Error("Field detail not set")
		}
		if err.Error() != "language: unsupported" {
			t.Errorf("Error() = %q", err.Error())
		}
	})
}

func TestStackOnlyForServerErrors(t *testing.T) {
	if err := New(DatabaseError); err.Stack == "" {
		t.Error("server errors should carry a stack")
	}
	if err := ValidationError("language", "unsupported"); err.Stack != "" {
		t.Errorf("client errors should not carry a stack: %q", err.Stack)
	}
}
