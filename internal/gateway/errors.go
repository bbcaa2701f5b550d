// Package gateway mediates every provider call: it composes the outbound
// request (the privacy boundary), validates the returned document against the
// turn's vocabulary budget and output contract, and drives the bounded
// rewrite loop.
package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError means the provider document was not structurally valid.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: %s", e.Reason)
}

// VocabularyError means the reply used tokens outside the turn's closed
// budget.
type VocabularyError struct {
	Tokens []string
}

func (e *VocabularyError) Error() string {
	return fmt.Sprintf("out-of-budget tokens: %s", strings.Join(e.Tokens, ", "))
}

// ContractError means a structurally valid document broke an output-contract
// rule (sentence length, target ids, correction cap, repeated reply).
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation: %s", e.Reason)
}

// ProviderError wraps a transport or API failure. It is the only recoverable
// gateway error: session state is untouched and the same input may be
// resubmitted.
type ProviderError struct {
	Err     error
	Timeout bool
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider timeout: %v", e.Err)
	}
	return fmt.Sprintf("provider failure: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Recoverable reports whether the turn may be resubmitted with the same
// input after err.
func Recoverable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
