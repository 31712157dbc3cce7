package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// MockRegistry mocks the CredentialRegistry interface
type MockRegistry struct {
	mock.Mock
}

// Address mocks the Address method
func (m *MockRegistry) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// Owner mocks the Owner method
func (m *MockRegistry) Owner(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

// AllRegisteredInstitutionAddresses mocks the AllRegisteredInstitutionAddresses method
func (m *MockRegistry) AllRegisteredInstitutionAddresses(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]common.Address), args.Error(1)
}

// InstitutionsData mocks the InstitutionsData method
func (m *MockRegistry) InstitutionsData(ctx context.Context, institution common.Address) (*interfaces.Institution, error) {
	args := m.Called(ctx, institution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Institution), args.Error(1)
}

// InstitutionCodeExists mocks the InstitutionCodeExists method
func (m *MockRegistry) InstitutionCodeExists(ctx context.Context, code *big.Int) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// SearchCredential mocks the SearchCredential method
func (m *MockRegistry) SearchCredential(ctx context.Context, studentID, schoolID *big.Int) (*interfaces.Credential, error) {
	args := m.Called(ctx, studentID, schoolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Credential), args.Error(1)
}

// VerifyCredential mocks the VerifyCredential method
func (m *MockRegistry) VerifyCredential(ctx context.Context, studentID, schoolID *big.Int, documentHash string) (*interfaces.Verification, error) {
	args := m.Called(ctx, studentID, schoolID, documentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Verification), args.Error(1)
}

// RegisterInstitution mocks the RegisterInstitution method
func (m *MockRegistry) RegisterInstitution(ctx context.Context, institution common.Address, name string, code *big.Int) (*types.Transaction, error) {
	args := m.Called(ctx, institution, name, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

// StoreCredential mocks the StoreCredential method
func (m *MockRegistry) StoreCredential(ctx context.Context, credential *interfaces.Credential) (*types.Transaction, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

// RevokeCredential mocks the RevokeCredential method
func (m *MockRegistry) RevokeCredential(ctx context.Context, studentID, schoolID *big.Int) (*types.Transaction, error) {
	args := m.Called(ctx, studentID, schoolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

// TransactionReceipt mocks the TransactionReceipt method
func (m *MockRegistry) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

// RevertReason mocks the RevertReason method
func (m *MockRegistry) RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (string, error) {
	args := m.Called(ctx, tx, receipt)
	return args.String(0), args.Error(1)
}

// MockRegistryFactory mocks the RegistryFactory interface
type MockRegistryFactory struct {
	mock.Mock
}

// RegistryFor mocks the RegistryFor method
func (m *MockRegistryFactory) RegistryFor(address common.Address, auth *bind.TransactOpts) (interfaces.CredentialRegistry, error) {
	args := m.Called(address, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.CredentialRegistry), args.Error(1)
}
