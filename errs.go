package lottery

import (
	"errors"
	"fmt"
)

// InvalidTicketReason tells why a ticket was rejected
type InvalidTicketReason string

const (
	ReasonWrongLength InvalidTicketReason = "wrong_length"
	ReasonOutOfRange  InvalidTicketReason = "out_of_range"
	ReasonDuplicate   InvalidTicketReason = "duplicate"
)

// Metadata keys carried by discriminated errors
const (
	MetaReason          = "reason"
	MetaExpected        = "expected"
	MetaActual          = "actual"
	MetaTicketIndex     = "ticket_index"
	MetaTicketID        = "ticket_id"
	MetaDrawID          = "draw_id"
	MetaTimeRemaining   = "time_remaining"
	MetaBlocksRemaining = "blocks_remaining"
)

func newInvalidTicketError(reason InvalidTicketReason, details string) *LotteryError {
	return ErrInvalidTicket.WithDetails(fmt.Sprintf("%s: %s", reason, details)).WithMetadata(MetaReason, reason)
}

func newWrongPaymentError(expected, actual Amount) *LotteryError {
	return ErrWrongPaymentAmount.
		WithDetails(fmt.Sprintf("expected=%d actual=%d", expected, actual)).
		WithMetadata(MetaExpected, expected).
		WithMetadata(MetaActual, actual)
}

func newCannotExecuteError(gate Gate) *LotteryError {
	details := fmt.Sprintf("time_remaining=%ds blocks_remaining=%d", gate.TimeRemaining, gate.BlocksRemaining)
	if !gate.HasTickets {
		details = "no tickets sold for the active draw"
	}
	return ErrCannotExecuteYet.WithDetails(details).
		WithMetadata(MetaTimeRemaining, gate.TimeRemaining).
		WithMetadata(MetaBlocksRemaining, gate.BlocksRemaining)
}

func newInvariantError(format string, args ...any) *LotteryError {
	return ErrInvariantViolation.WithDetails(fmt.Sprintf(format, args...)).WithStackTrace()
}

// InvalidTicketReasonOf extracts the rejection reason from an ErrInvalidTicket error
func InvalidTicketReasonOf(err error) (InvalidTicketReason, bool) {
	var le *LotteryError
	if !errors.As(err, &le) || le.Code != ErrCodeInvalidTicket {
		return "", false
	}
	reason, ok := le.Metadata[MetaReason].(InvalidTicketReason)
	return reason, ok
}
