package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// OnchainRegistryClient implements the interfaces.CredentialRegistry interface for
// interacting with a SIRCMS contract deployed on a blockchain.
type OnchainRegistryClient struct {
	contract *bind.BoundContract
	abi      abi.ABI
	client   interfaces.ChainBackend
	address  common.Address
	auth     *bind.TransactOpts
}

// NewOnchainRegistryClient creates a new client for the registry contract at the specified address.
func NewOnchainRegistryClient(client interfaces.ChainBackend, address common.Address) (*OnchainRegistryClient, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("could not parse registry ABI: %w", err)
	}

	return &OnchainRegistryClient{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		abi:      parsed,
		client:   client,
		address:  address,
	}, nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before using any methods that send transactions to the blockchain.
func (c *OnchainRegistryClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

func (c *OnchainRegistryClient) Address() common.Address {
	return c.address
}

func (c *OnchainRegistryClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}
	opts := *c.auth
	opts.Context = ctx
	return &opts, nil
}

// Owner returns the contract owner.
func (c *OnchainRegistryClient) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// AllRegisteredInstitutionAddresses lists the addresses of every registered institution.
func (c *OnchainRegistryClient) AllRegisteredInstitutionAddresses(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAllRegisteredInstitutionAddresses"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// InstitutionsData reads the institutionsData mapping. Unknown addresses yield a zero tuple.
func (c *OnchainRegistryClient) InstitutionsData(ctx context.Context, institution common.Address) (*interfaces.Institution, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "institutionsData", institution); err != nil {
		return nil, err
	}

	return &interfaces.Institution{
		InstitutionAddress: *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Name:               *abi.ConvertType(out[1], new(string)).(*string),
		Code:               *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		IsRegistered:       *abi.ConvertType(out[3], new(bool)).(*bool),
	}, nil
}

// InstitutionCodeExists reports whether an institution code is taken.
func (c *OnchainRegistryClient) InstitutionCodeExists(ctx context.Context, code *big.Int) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "institutionCodeExists", code); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SearchCredential fetches a credential by student and school id. The contract reverts for unknown credentials.
func (c *OnchainRegistryClient) SearchCredential(ctx context.Context, studentID, schoolID *big.Int) (*interfaces.Credential, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "searchCredential", studentID, schoolID); err != nil {
		return nil, err
	}

	return &interfaces.Credential{
		StudentId:        *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		SchoolId:         *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		StudentName:      *abi.ConvertType(out[2], new(string)).(*string),
		DateOfBirth:      *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		InstitutionName:  *abi.ConvertType(out[4], new(string)).(*string),
		CertificateTitle: *abi.ConvertType(out[5], new(string)).(*string),
		IssueDate:        *abi.ConvertType(out[6], new(*big.Int)).(**big.Int),
		ExpiryDate:       *abi.ConvertType(out[7], new(*big.Int)).(**big.Int),
		DocumentHash:     *abi.ConvertType(out[8], new(string)).(*string),
		IpfsCid:          *abi.ConvertType(out[9], new(string)).(*string),
		IsRevoked:        *abi.ConvertType(out[10], new(bool)).(*bool),
	}, nil
}

// VerifyCredential checks a document hash against the stored credential.
func (c *OnchainRegistryClient) VerifyCredential(ctx context.Context, studentID, schoolID *big.Int, documentHash string) (*interfaces.Verification, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "verifyCredential", studentID, schoolID, documentHash); err != nil {
		return nil, err
	}

	return &interfaces.Verification{
		IsValid:   *abi.ConvertType(out[0], new(bool)).(*bool),
		IsRevoked: *abi.ConvertType(out[1], new(bool)).(*bool),
		IsExpired: *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

// RegisterInstitution registers an institution address under a name and a unique code.
// Returns the transaction and an error if the transaction could not be sent.
func (c *OnchainRegistryClient) RegisterInstitution(ctx context.Context, institution common.Address, name string, code *big.Int) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	return c.contract.Transact(opts, "registerInstitution", institution, name, code)
}

// StoreCredential stores a credential issued by the sender's institution.
// Returns the transaction and an error if the transaction could not be sent.
func (c *OnchainRegistryClient) StoreCredential(ctx context.Context, credential *interfaces.Credential) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	expiry := credential.ExpiryDate
	if expiry == nil {
		expiry = new(big.Int)
	}

	return c.contract.Transact(opts, "storeCredential",
		credential.StudentId,
		credential.SchoolId,
		credential.StudentName,
		credential.DateOfBirth,
		credential.InstitutionName,
		credential.CertificateTitle,
		credential.IssueDate,
		expiry,
		credential.DocumentHash,
		credential.IpfsCid,
	)
}

// RevokeCredential marks a credential as revoked.
// Returns the transaction and an error if the transaction could not be sent.
func (c *OnchainRegistryClient) RevokeCredential(ctx context.Context, studentID, schoolID *big.Int) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	return c.contract.Transact(opts, "revokeCredential", studentID, schoolID)
}

// TransactionReceipt returns the receipt of a mined transaction or ethereum.NotFound while it is pending.
func (c *OnchainRegistryClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.client.TransactionReceipt(ctx, txHash)
}

// RevertReason re-executes a failed transaction as a call at its block to recover the revert reason.
// An empty reason with a nil error means the replay did not fail.
func (c *OnchainRegistryClient) RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (string, error) {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("could not recover transaction sender: %w", err)
	}

	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}

	var block *big.Int
	if receipt != nil {
		block = receipt.BlockNumber
	}

	_, callErr := c.client.CallContract(ctx, msg, block)
	if callErr == nil {
		return "", nil
	}

	var revertErr *interfaces.RevertError
	if errors.As(ClassifyError(callErr), &revertErr) {
		return revertErr.Reason, nil
	}
	return "", callErr
}

// Event is a decoded registry event observed in a transaction receipt.
type Event struct {
	Name   string
	Fields map[string]interface{}
}

// DecodeEvents extracts the registry's own events from a receipt. Logs emitted by other
// contracts and logs that do not decode are skipped.
func (c *OnchainRegistryClient) DecodeEvents(receipt *types.Receipt) []Event {
	return DecodeEvents(c.abi, c.address, receipt)
}

// DecodeEvents extracts events of the given contract from a receipt.
func DecodeEvents(parsed abi.ABI, address common.Address, receipt *types.Receipt) []Event {
	if receipt == nil {
		return nil
	}

	var events []Event
	for _, log := range receipt.Logs {
		if log == nil || log.Address != address || len(log.Topics) == 0 {
			continue
		}

		ev, err := parsed.EventByID(log.Topics[0])
		if err != nil {
			continue
		}

		fields := make(map[string]interface{})
		if len(log.Data) > 0 {
			if err := parsed.UnpackIntoMap(fields, ev.Name, log.Data); err != nil {
				continue
			}
		}

		var indexed abi.Arguments
		for _, arg := range ev.Inputs {
			if arg.Indexed {
				indexed = append(indexed, arg)
			}
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			continue
		}

		events = append(events, Event{Name: ev.Name, Fields: fields})
	}
	return events
}

// RegistryFactory creates OnchainRegistryClient instances bound to a signer.
type RegistryFactory struct {
	client interfaces.ChainBackend
}

// NewRegistryFactory creates a new factory for registry clients backed by client.
func NewRegistryFactory(client interfaces.ChainBackend) *RegistryFactory {
	return &RegistryFactory{client: client}
}

// RegistryFor returns a registry client for the contract at address, authorized by auth.
func (f *RegistryFactory) RegistryFor(address common.Address, auth *bind.TransactOpts) (interfaces.CredentialRegistry, error) {
	client, err := NewOnchainRegistryClient(f.client, address)
	if err != nil {
		return nil, err
	}
	client.SetTransactOpts(auth)
	return client, nil
}
