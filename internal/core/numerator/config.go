// Package numerator provides domain contracts for ledger numbering:
// purchase numbers and client receipt codes.
package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict bumps the sequence row for every number.
	// Numbers are gapless as long as the surrounding transaction commits.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Faster, but may produce gaps if the process restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g. "PU", or a client code)
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns the yearly document numbering: PREFIX-YYYY-00001.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// ReceiptCodeConfig numbers receipts per client: CLIENTCODE-000001.
// The sequence never resets so codes stay unique for the client's lifetime.
func ReceiptCodeConfig(clientCode string) Config {
	return Config{
		Prefix:      clientCode,
		PadWidth:    6,
		ResetPeriod: "never",
	}
}
