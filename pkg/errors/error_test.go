package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codepractice/pkg/errors"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{IdentityMissing, 401},
		{ProblemNotFound, 404},
		{TestCaseNotFound, 404},
		{SubmissionInProgress, 409},
		{SubmitTooFrequently, 429},
		{SandboxUnavailable, 503},
		{EvaluationSystemError, 500},
		{InternalServerError, 500},
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
	err := Newf(ProblemNotFound, "problem %s not found", "two-sum")
	if err.Error() != "problem two-sum not found" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Code != ProblemNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ProblemNotFound)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("wrapped error should match the original")
	}
}

func TestWrap_RecodesCopy(t *testing.T) {
	base := New(ProblemNotFound).WithDetail("problemId", "p1")
	recoded := Wrap(base, InternalServerError)

	if base.Code != ProblemNotFound {
		t.Fatalf("expected original code untouched, got %v", base.Code)
	}
	if recoded.Code != InternalServerError {
		t.Fatalf("expected recoded error, got %v", recoded.Code)
	}
	if recoded.Details["problemId"] != "p1" {
		t.Fatalf("expected details to survive wrap")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(SubmissionNotFound), want: SubmissionNotFound},
		{name: "fmt wrapped custom error", err: fmt.Errorf("load: %w", New(ProblemNotFound)), want: ProblemNotFound},
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
	err := New(CodeTooLarge)

	if !Is(err, CodeTooLarge) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, DatabaseError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, CodeTooLarge) {
		t.Error("Is() should return false for nil error")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("code", "is required")
	if err.Code != ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err.Code)
	}
	if err.Details["field"] != "code" {
		t.Fatalf("field detail not set")
	}
	if err.Error() != "code is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
