package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorInfrastructure, "infrastructure"},
		{ErrorValidation, "validation"},
		{ErrorConfiguration, "configuration"},
		{ErrorFlush, "flush"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsInfrastructure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"no connection", ErrNoConnection, true},
		{"connection lost", ErrConnectionLost, true},
		{"connection timeout", ErrConnectionTimeout, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"invalid page", ErrInvalidPage, false},
		{"missing secret key", ErrMissingSecretKey, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"no responders", fmt.Errorf("nats: no responders available for request"), true},
		{"classified infrastructure", &ClassifiedError{Class: ErrorInfrastructure, Err: fmt.Errorf("test")}, true},
		{"classified configuration", &ClassifiedError{Class: ErrorConfiguration, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInfrastructure(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"missing secret key", ErrMissingSecretKey, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid page", ErrInvalidPage, false},
		{"classified configuration", &ClassifiedError{Class: ErrorConfiguration, Err: fmt.Errorf("test")}, true},
		{"classified infrastructure", &ClassifiedError{Class: ErrorInfrastructure, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsConfiguration(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid page", ErrInvalidPage, true},
		{"invalid limit", ErrInvalidLimit, true},
		{"empty id", ErrEmptyID, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid config", ErrInvalidConfig, false},
		{"classified validation", &ClassifiedError{Class: ErrorValidation, Err: fmt.Errorf("test")}, true},
		{"classified infrastructure", &ClassifiedError{Class: ErrorInfrastructure, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsValidation(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFlush(t *testing.T) {
	flushErr := WrapFlush(fmt.Errorf("bulk insert rejected"), "Accumulator", "Flush", "bulk insert")

	if !IsFlush(flushErr) {
		t.Error("wrapped flush error should classify as flush")
	}
	if IsFlush(ErrConnectionTimeout) {
		t.Error("connection timeout should not classify as flush")
	}
	if IsFlush(nil) {
		t.Error("nil should not classify as flush")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Error("ErrNotFound should report not-found")
	}
	if !IsNotFound(Wrap(ErrKeyNotFound, "Store", "Get", "fast store read")) {
		t.Error("wrapped ErrKeyNotFound should report not-found")
	}
	if IsNotFound(ErrNoConnection) {
		t.Error("ErrNoConnection should not report not-found")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorInfrastructure},
		{"connection timeout", ErrConnectionTimeout, ErrorInfrastructure},
		{"invalid config", ErrInvalidConfig, ErrorConfiguration},
		{"invalid page", ErrInvalidPage, ErrorValidation},
		{"unknown error", fmt.Errorf("unknown error"), ErrorInfrastructure},
		{"classified flush", &ClassifiedError{Class: ErrorFlush, Err: fmt.Errorf("test")}, ErrorFlush},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorInfrastructure, baseErr, "testComponent", "testOperation", "custom message")

	if ce.Class != ErrorInfrastructure {
		t.Errorf("expected ErrorInfrastructure, got %v", ce.Class)
	}

	if ce.Component != "testComponent" {
		t.Errorf("expected testComponent, got %s", ce.Component)
	}

	if ce.Operation != "testOperation" {
		t.Errorf("expected testOperation, got %s", ce.Operation)
	}

	if ce.Error() != "custom message" {
		t.Errorf("expected 'custom message', got %s", ce.Error())
	}

	if !errors.Is(ce, baseErr) {
		t.Error("classified error should unwrap to base error")
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorInfrastructure, baseErr, "testComponent", "testOperation", "")

	if ce.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", ce.Error())
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		method    string
		action    string
		expected  string
	}{
		{
			"nil error",
			nil,
			"component",
			"method",
			"action",
			"",
		},
		{
			"basic wrap",
			fmt.Errorf("original error"),
			"Publisher",
			"Publish",
			"append record",
			"Publisher.Publish: append record failed: original error",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Wrap(test.err, test.component, test.method, test.action)
			if test.expected == "" {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
			} else {
				if result == nil || result.Error() != test.expected {
					t.Errorf("expected '%s', got '%v'", test.expected, result)
				}
			}
		})
	}
}

func TestWrapClassified(t *testing.T) {
	baseErr := fmt.Errorf("original error")

	tests := []struct {
		name     string
		wrapFunc func(error, string, string, string) error
		class    ErrorClass
	}{
		{"WrapInfrastructure", WrapInfrastructure, ErrorInfrastructure},
		{"WrapValidation", WrapValidation, ErrorValidation},
		{"WrapConfiguration", WrapConfiguration, ErrorConfiguration},
		{"WrapFlush", WrapFlush, ErrorFlush},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.wrapFunc(baseErr, "component", "method", "action")

			var ce *ClassifiedError
			if !errors.As(result, &ce) {
				t.Error("result should be a ClassifiedError")
				return
			}

			if ce.Class != test.class {
				t.Errorf("expected %v, got %v", test.class, ce.Class)
			}

			if ce.Component != "component" {
				t.Errorf("expected 'component', got %s", ce.Component)
			}

			if ce.Operation != "method" {
				t.Errorf("expected 'method', got %s", ce.Operation)
			}

			if !strings.Contains(ce.Error(), "component.method: action failed") {
				t.Errorf("error should contain standard format, got: %s", ce.Error())
			}
		})
	}
}

func TestWrapClassified_NilError(t *testing.T) {
	for _, wrapFunc := range []func(error, string, string, string) error{
		WrapInfrastructure, WrapValidation, WrapConfiguration, WrapFlush,
	} {
		if wrapFunc(nil, "c", "m", "a") != nil {
			t.Error("wrapping nil should return nil")
		}
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	config := DefaultRetryConfig()

	tests := []struct {
		name     string
		err      error
		attempt  int
		expected bool
	}{
		{"nil error", nil, 0, false},
		{"max retries exceeded", ErrConnectionTimeout, 3, false},
		{"infrastructure error within limit", ErrConnectionTimeout, 1, true},
		{"configuration error", ErrInvalidConfig, 1, false},
		{"validation error", ErrInvalidPage, 1, false},
		{"custom infrastructure", fmt.Errorf("connection timeout"), 1, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := config.ShouldRetry(test.err, test.attempt)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v, attempt: %d",
					test.expected, result, test.err, test.attempt)
			}
		})
	}
}

func TestRetryConfig_ShouldRetry_WithSpecificErrors(t *testing.T) {
	config := RetryConfig{
		MaxRetries:      3,
		InitialDelay:    100 * time.Millisecond,
		BackoffFactor:   2.0,
		RetryableErrors: []error{ErrConnectionTimeout},
	}

	// Should retry connection timeout
	if !config.ShouldRetry(ErrConnectionTimeout, 1) {
		t.Error("should retry connection timeout")
	}

	// Should not retry other infrastructure errors not in the list
	if config.ShouldRetry(ErrConnectionLost, 1) {
		t.Error("should not retry connection lost when not in retryable list")
	}
}

func TestRetryConfig_BackoffDelay(t *testing.T) {
	config := RetryConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second}, // Capped at MaxDelay
		{5, 1 * time.Second},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("attempt_%d", test.attempt), func(t *testing.T) {
			result := config.BackoffDelay(test.attempt)
			if result != test.expected {
				t.Errorf("expected %v, got %v for attempt %d", test.expected, result, test.attempt)
			}
		})
	}
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	config := RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 1.5,
	}

	converted := config.ToRetryConfig()

	if converted.MaxAttempts != 4 {
		t.Errorf("expected 4 total attempts, got %d", converted.MaxAttempts)
	}
	if converted.InitialDelay != 50*time.Millisecond {
		t.Errorf("expected 50ms initial delay, got %v", converted.InitialDelay)
	}
	if converted.Multiplier != 1.5 {
		t.Errorf("expected multiplier 1.5, got %f", converted.Multiplier)
	}
	if !converted.AddJitter {
		t.Error("expected jitter enabled")
	}
}
