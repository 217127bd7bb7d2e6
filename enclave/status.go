package enclave

import (
	"fmt"

	"github.com/wippyai/wasm-enclave/errors"
)

// Status is the only value returned across the trust boundary.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusInvalidInput
	StatusInternalFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidInput:
		return "invalid_input"
	case StatusInternalFailure:
		return "internal_failure"
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// StatusOf maps an internal error to its external status. Rejections of the
// caller's region or its encoding are InvalidInput, everything else is
// InternalFailure.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	phase, ok := errors.PhaseOf(err)
	if ok && (phase == errors.PhaseValidate || phase == errors.PhaseDecode) {
		return StatusInvalidInput
	}
	return StatusInternalFailure
}
