package gateway

import (
	"errors"
	"fmt"

	"paygate/internal/domain/channels"
	"paygate/internal/payments"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrAlreadyPaid           = errors.New("order already paid")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderNotPaid          = errors.New("order not paid")
	ErrRefundNotFound        = errors.New("refund not found")
	ErrRefundInProgress      = errors.New("refund in progress")
	ErrRefundAlreadyComplete = errors.New("refund already complete")
	ErrRefundAmountExceeded  = errors.New("refund amount exceeds refundable amount")
	ErrStorageConflict       = errors.New("storage conflict")
	ErrInvalidTransition     = errors.New("invalid status transition")

	ErrUnsupportedPayWay    = payments.ErrUnsupportedPayWay
	ErrChannelNotConfigured = channels.ErrNotConfigured
)

// AdapterError wraps a failed channel call. Ambiguous is set when money may
// have moved at the provider (timeout, transport failure, 5xx); the record is
// then left in the unknown status for reconciliation.
type AdapterError struct {
	Op        string
	Channel   string
	PayWay    string
	Ambiguous bool
	Err       error
}

func (e *AdapterError) Error() string {
	kind := "rejected"
	if e.Ambiguous {
		kind = "outcome unknown"
	}
	return fmt.Sprintf("%s/%s %s %s: %v", e.Channel, e.PayWay, e.Op, kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func newAdapterError(op, channel, payWay string, err error) *AdapterError {
	// Anything that is not a classified provider rejection counts as unknown.
	ambiguous := true
	var pe *payments.ProviderError
	if errors.As(err, &pe) {
		ambiguous = !pe.Definite()
	}
	return &AdapterError{Op: op, Channel: channel, PayWay: payWay, Ambiguous: ambiguous, Err: err}
}

func validationError(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
