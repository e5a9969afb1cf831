package errx

import (
	"errors"
	"fmt"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes Redis key misses surfaced as errors.
	RedisNotFoundMessage = "redis key not found"
)

// Sentinel kinds for the turn-level error taxonomy. Callers classify with
// errors.Is and decide whether a turn degrades, retries inside the agent
// loop, or aborts.
var (
	// ErrConfiguration marks missing or invalid turn configuration. Fatal,
	// no partial answer is produced.
	ErrConfiguration = errors.New("invalid chatbot configuration")

	// ErrWorkspaceNotFound marks an unknown workspace id. Non-fatal, the
	// workspace is skipped and retrieval breadth degrades.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrUpstreamService marks retrieval/generation/tool backends that are
	// unreachable or erroring. Not retried at this layer.
	ErrUpstreamService = errors.New("upstream service error")

	// ErrRecursionExhausted marks an agent loop that hit its recursion bound
	// while a tool call was still pending.
	ErrRecursionExhausted = errors.New("agent recursion limit exhausted")
)

// Tool-call parsing failures. Each is recoverable inside the agent loop:
// the failure is recorded as a synthetic conversation turn and the planner
// runs again, up to the recursion bound.
var (
	ErrToolNotExist          = errors.New("tool does not exist")
	ErrToolParameterNotExist = errors.New("tool parameter does not exist")
	ErrMultipleToolName      = errors.New("multiple tool names in one step")
	ErrToolNotFound          = errors.New("no tool call found in model output")
)

// ToolParsingError carries the context needed to synthesize a corrective
// agent turn when the model produced an unusable tool call.
type ToolParsingError struct {
	Kind     error  // one of the ErrTool* sentinels
	ToolName string // offending tool name, when known
	Detail   string // human-readable description fed back to the model
}

func (e *ToolParsingError) Error() string {
	if e.ToolName == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: tool %q: %s", e.Kind, e.ToolName, e.Detail)
}

func (e *ToolParsingError) Unwrap() error {
	return e.Kind
}

// IsToolParsing reports whether err belongs to the recoverable tool-call
// parsing family.
func IsToolParsing(err error) bool {
	return errors.Is(err, ErrToolNotExist) ||
		errors.Is(err, ErrToolParameterNotExist) ||
		errors.Is(err, ErrMultipleToolName) ||
		errors.Is(err, ErrToolNotFound)
}

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Configuration wraps err as a fatal configuration failure.
func Configuration(detail string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, detail)
}

// Upstream tags an error from an external collaborator so the graph can
// abort the turn with a structured failure.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstreamService, service, err)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
