package receipt

import "storeledger/internal/core/numerator"

const (
	// NumeratorStrategy for receipt codes (CL042-000001).
	NumeratorStrategy = numerator.StrategyStrict

	// DefaultCodeAttempts bounds code generation when a code is already taken.
	DefaultCodeAttempts = 3
)
