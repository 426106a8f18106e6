package purchase

import "storeledger/internal/core/numerator"

const (
	// NumberPrefix prefixes purchase numbers: PU-2026-00001.
	NumberPrefix = "PU"

	// NumeratorStrategy keeps purchase numbers gapless.
	NumeratorStrategy = numerator.StrategyStrict
)
