package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrInvalidInput     = errors.New("invalid input")                           // Bad path, missing crawl id, unsupported content type
	ErrTransport        = errors.New("transport failure")                       // Origin fetch failed (status or network)
	ErrRetryFailed      = errors.New("request failed after all retries")        // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")                 // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")                 // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")              // Wraps original error/status
	ErrStoreMiss        = errors.New("object not found in store")               // Cache miss, not a failure by itself
	ErrDependency       = errors.New("dependency failure")                      // Queue, store or invoke backend failed
	ErrDatabase         = errors.New("database error")                          // Wraps badger errors
	ErrQueue            = errors.New("queue error")                             // Wraps SQS / AMQP / Kafka errors
	ErrInvoke           = errors.New("invoke error")                            // Wraps out-of-band invocation errors
	ErrParsing          = errors.New("parsing error")                           // Wraps URL, JSON, tag parsing errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Input_Invalid"
	case errors.Is(err, ErrRetryFailed):
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if isTimeout(err) {
			return "RetryFailed_NetworkTimeout"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrStoreMiss):
		return "Store_Miss"
	case errors.Is(err, ErrDatabase):
		return "Dependency_Database"
	case errors.Is(err, ErrQueue):
		return "Dependency_Queue"
	case errors.Is(err, ErrInvoke):
		return "Dependency_Invoke"
	case errors.Is(err, ErrDependency):
		return "Dependency_Other"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrTransport):
		return "Transport_Other"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if isTimeout(err) {
		return "Network_Timeout"
	}

	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
