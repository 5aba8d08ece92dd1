package validation

import (
	"fmt"

	dErrors "vpgate/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize bounds a single verification request. Presentations with
	// several embedded credentials and CBOR namespaces fit well inside it.
	MaxBodySize = 1 << 20

	// MaxBatchBodySize bounds a batch request.
	MaxBatchBodySize = 8 << 20
)

// Slice element count limits
const (
	MaxPolicies   = 32
	MaxBatchItems = 100
)

// String element length limits
const (
	MaxPolicyNameLength = 100
	MaxChallengeLength  = 512
	MaxDomainLength     = 2048
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates every element of values.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
