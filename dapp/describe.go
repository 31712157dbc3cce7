package dapp

import (
	"errors"
	"fmt"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/wallet"
)

// ErrBusy is returned when an operation is started while another one is still running.
var ErrBusy = errors.New("another operation is in progress")

const (
	msgBusy           = "Another operation is in progress. Please wait."
	msgNotConnected   = "Please connect your wallet first."
	msgGenericRevert  = "Transaction reverted by contract. Check contract logic or input data."
	msgUserRejected   = "Transaction rejected by user."
	msgNoPinner       = "No pinning backend is configured."
	msgNoDocument     = "Please select a file to upload."
	msgUnknownFailure = "An unknown error occurred."
)

// Describe turns an error of the client taxonomy into the message shown to the user.
// action names what was attempted, for example "registering institution".
func Describe(action string, err error) string {
	if err == nil {
		return ""
	}

	var validationErr *interfaces.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason
	}

	switch {
	case errors.Is(err, ErrBusy):
		return msgBusy
	case errors.Is(err, interfaces.ErrProviderAbsent):
		return wallet.MessageNoProvider
	case errors.Is(err, interfaces.ErrNotConnected):
		return msgNotConnected
	}

	return fmt.Sprintf("Failed to %s: %s", action, reason(err))
}

func reason(err error) string {
	var revertErr *interfaces.RevertError
	var networkErr *interfaces.WrongNetworkError

	switch {
	case errors.As(err, &revertErr):
		if revertErr.Reason == "" || revertErr.Reason == interfaces.GenericRevertReason {
			return msgGenericRevert
		}
		return revertErr.Reason
	case errors.As(err, &networkErr):
		return networkErr.Error()
	case errors.Is(err, interfaces.ErrUserRejected):
		return msgUserRejected
	case err.Error() == "":
		return msgUnknownFailure
	default:
		return err.Error()
	}
}
