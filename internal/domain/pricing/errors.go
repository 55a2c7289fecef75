package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrValidation is returned for requests rejected before any computation.
	ErrValidation = errors.New("invalid pricing request")
	// ErrUpgradeChain is returned when an upgrade chain loops or is deeper
	// than the configured limit.
	ErrUpgradeChain = errors.New("corrupt upgrade chain")
)

// PriceFormattingError reports a missing product or price. It carries the
// request options for diagnostics.
type PriceFormattingError struct {
	Options FormatInput
	Err     error
}

func (e *PriceFormattingError) Error() string {
	return fmt.Sprintf("format prices for product %q: %v", e.Options.ProductID, e.Err)
}

func (e *PriceFormattingError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
