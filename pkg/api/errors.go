package api

import (
	"errors"
	"net/http"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/ownership"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// writeDomainError translates domain errors into HTTP responses.
// Policy scope failures surface as 404, never 403, so out-of-scope
// records don't leak their existence.
func writeDomainError(w http.ResponseWriter, err error) {
	var invalid *status.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, invalid.Error())
	case errors.Is(err, policy.ErrForbidden):
		httputil.WriteForbidden(w, "forbidden")
	case errors.Is(err, policy.ErrNotFound),
		errors.Is(err, invoices.ErrInvoiceNotFound),
		errors.Is(err, invoices.ErrPaymentNotFound),
		errors.Is(err, contracts.ErrContractNotFound),
		errors.Is(err, tenants.ErrTenantNotFound),
		errors.Is(err, tenants.ErrInvitationNotFound),
		errors.Is(err, settings.ErrSettingNotFound),
		errors.Is(err, ownership.ErrOwnershipNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteNotFound(w, "not found")
	case errors.Is(err, invoices.ErrOverpayment),
		errors.Is(err, invoices.ErrPartialNotAllowed),
		errors.Is(err, invoices.ErrEditNotAllowed),
		errors.Is(err, contracts.ErrInvalidPeriod):
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ownership.ErrOwnershipRequired):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ownership.ErrOwnershipInactive),
		errors.Is(err, ownership.ErrOwnershipAccessDenied):
		httputil.WriteForbidden(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
