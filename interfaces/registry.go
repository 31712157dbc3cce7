package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Institution is the raw institutionsData tuple.
type Institution struct {
	InstitutionAddress common.Address
	Name               string
	Code               *big.Int
	IsRegistered       bool
}

// Credential is the raw searchCredential tuple. It is also the argument set of storeCredential.
// Timestamps are unix seconds, an ExpiryDate of zero means the credential never expires.
type Credential struct {
	StudentId        *big.Int
	SchoolId         *big.Int
	StudentName      string
	DateOfBirth      *big.Int
	InstitutionName  string
	CertificateTitle string
	IssueDate        *big.Int
	ExpiryDate       *big.Int
	DocumentHash     string
	IpfsCid          string
	IsRevoked        bool
}

// Verification is the raw verifyCredential tuple.
type Verification struct {
	IsValid   bool
	IsRevoked bool
	IsExpired bool
}

// CredentialRegistry is the consumed surface of the deployed SIRCMS contract.
type CredentialRegistry interface {
	// Address returns the address the registry is bound to.
	Address() common.Address

	Owner(ctx context.Context) (common.Address, error)
	AllRegisteredInstitutionAddresses(ctx context.Context) ([]common.Address, error)
	InstitutionsData(ctx context.Context, institution common.Address) (*Institution, error)
	InstitutionCodeExists(ctx context.Context, code *big.Int) (bool, error)
	SearchCredential(ctx context.Context, studentID, schoolID *big.Int) (*Credential, error)
	VerifyCredential(ctx context.Context, studentID, schoolID *big.Int, documentHash string) (*Verification, error)

	RegisterInstitution(ctx context.Context, institution common.Address, name string, code *big.Int) (*types.Transaction, error)
	StoreCredential(ctx context.Context, credential *Credential) (*types.Transaction, error)
	RevokeCredential(ctx context.Context, studentID, schoolID *big.Int) (*types.Transaction, error)

	// TransactionReceipt returns the receipt of a mined transaction, or ethereum.NotFound while pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// RevertReason replays a failed transaction at its block and returns the revert reason, if any.
	RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (string, error)
}

// RegistryFactory creates registry handles for a contract address, authorized by auth.
type RegistryFactory interface {
	RegistryFor(address common.Address, auth *bind.TransactOpts) (CredentialRegistry, error)
}
