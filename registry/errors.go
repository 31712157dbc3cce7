package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// userRejectedCode is the EIP-1193 "user rejected request" JSON-RPC error code.
const userRejectedCode = 4001

var classified = []error{
	interfaces.ErrProviderAbsent,
	interfaces.ErrUserRejected,
	interfaces.ErrWrongNetwork,
	interfaces.ErrReverted,
	interfaces.ErrNotFound,
	interfaces.ErrNetwork,
	interfaces.ErrValidation,
	interfaces.ErrNotConnected,
}

// ClassifyError maps an error returned by a node, a signer or a contract call onto the
// client error taxonomy. Errors that already belong to the taxonomy are returned unchanged,
// errors that match no category are returned as is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}

	if errors.Is(err, keystore.ErrLocked) || errors.Is(err, keystore.ErrDecrypt) {
		return fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
	}

	if reason, ok := revertReason(err); ok {
		return &interfaces.RevertError{Reason: reason}
	}

	if isNetworkError(err) {
		return fmt.Errorf("%w: %v", interfaces.ErrNetwork, err)
	}

	return err
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil && len(data) > 0 {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
				return interfaces.GenericRevertReason, true
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, interfaces.GenericRevertReason); idx >= 0 {
		rest := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(interfaces.GenericRevertReason):], ":"))
		if rest == "" {
			return interfaces.GenericRevertReason, true
		}
		return rest, true
	}

	if strings.Contains(msg, "missing revert data") || strings.Contains(msg, "require(false)") {
		return interfaces.GenericRevertReason, true
	}

	return "", false
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout")
}
