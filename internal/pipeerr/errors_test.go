package pipeerr

import (
	"errors"
	"testing"
	"time"
)

func TestClassify_TransportErrorIsTransient(t *testing.T) {
	if got := Classify(0, &TimeoutError{Component: "x", Elapsed: time.Second}); got != ClassRetryableTransient {
		t.Errorf("expected a timeout to classify as transient, got %v", got)
	}
	if got := Classify(0, &NetworkError{Component: "x", Cause: errors.New("boom")}); got != ClassRetryableTransient {
		t.Errorf("expected a network error to classify as transient, got %v", got)
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   Classification
	}{
		{429, ClassRetryableRateLimited},
		{401, ClassAuthNone},
		{403, ClassAuthNone},
		{500, ClassRetryableTransient},
		{503, ClassRetryableTransient},
		{404, ClassFatal},
		{200, ClassFatal},
	}
	for _, c := range cases {
		if got := Classify(c.status, nil); got != c.want {
			t.Errorf("Classify(%d, nil) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestConfigError_UnwrapsToSentinel(t *testing.T) {
	err := &ConfigError{Field: "f", Reason: "r"}
	if !errors.Is(err, ErrConfigInvalid) {
		t.Error("expected ConfigError to unwrap to ErrConfigInvalid")
	}
}

func TestCircuitOpenError_UnwrapsToSentinel(t *testing.T) {
	err := &CircuitOpenError{Operation: "fetch"}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("expected CircuitOpenError to unwrap to ErrCircuitOpen")
	}
}

func TestDeadlineExceededError_UnwrapsToSentinel(t *testing.T) {
	err := &DeadlineExceededError{Step: "analyze"}
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Error("expected DeadlineExceededError to unwrap to ErrDeadlineExceeded")
	}
}

func TestStepErrorHelpers_PreserveCauseForErrorsAs(t *testing.T) {
	cause := &NetworkError{Component: "fetch", Cause: errors.New("refused")}

	err := FetchFailed(cause)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatal("expected FetchFailed's StepError to unwrap to the underlying NetworkError")
	}

	var step *StepError
	if !errors.As(err, &step) || step.Step != "FetchFailed" {
		t.Errorf("expected a StepError tagged FetchFailed, got %+v", step)
	}
}
