package settlement

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can pick a retry policy. Infra
// failures are transient and retryable. Inconsistent data and wrong
// environment are permanent: retrying cannot help.
type Kind string

const (
	KindInfra            Kind = "infra"
	KindInconsistentData Kind = "inconsistent-data"
	KindWrongEnvironment Kind = "wrong-environment"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func infraErr(format string, args ...any) *Error {
	return &Error{Kind: KindInfra, Err: fmt.Errorf(format, args...)}
}

func inconsistentErr(format string, args ...any) *Error {
	return &Error{Kind: KindInconsistentData, Err: fmt.Errorf(format, args...)}
}

func wrongEnvErr(format string, args ...any) *Error {
	return &Error{Kind: KindWrongEnvironment, Err: fmt.Errorf(format, args...)}
}

// ErrorKind extracts the Kind of an error produced by this package.
// Unclassified errors are reported as infra, which makes the caller retry:
// the safe default for anything unexpected.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}

// Score computation failures. These are "undefined result" conditions, not
// infra problems.
var (
	ErrMultiplePolicies  = errors.New("multiple fee policies are not supported")
	ErrUnsupportedPolicy = errors.New("fee policy not supported")
	ErrNotComputable     = errors.New("result not computable")
	ErrMissingPrice      = errors.New("missing native token price")
)
