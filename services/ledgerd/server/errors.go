package server

import (
	"errors"
	"net/http"

	nativecommon "tranchefi/native/common"
	"tranchefi/services/ledgerd/journal"
)

var errBadRequest = errors.New("bad request")

// statusFor maps ledger failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest), errors.Is(err, nativecommon.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrNoActiveLoan):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrNotInitialized),
		errors.Is(err, nativecommon.ErrAlreadyApproved),
		errors.Is(err, journal.ErrIdempotencyMismatch),
		errors.Is(err, journal.ErrIdempotencyInFlight):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrInsufficientBalance),
		errors.Is(err, nativecommon.ErrNothingToRedeem):
		return http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
