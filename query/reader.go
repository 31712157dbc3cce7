// Package query implements the read-only view of the registry: typed single-record reads
// and enumerations that keep going past individual failures.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/metrics"
	"github.com/ruteri/credential-registry-client/registry"
)

// BindingSource provides the live contract binding, typically a wallet.SessionManager.
type BindingSource interface {
	Binding(ctx context.Context) (*registry.Binding, error)
}

// InstitutionRecord is a registered institution.
type InstitutionRecord struct {
	Address      common.Address `json:"address"`
	Name         string         `json:"name"`
	Code         uint64         `json:"code"`
	IsRegistered bool           `json:"isRegistered"`
}

// CredentialRecord is a stored credential. ExpiryDate is nil for credentials that never expire.
type CredentialRecord struct {
	StudentID        uint64           `json:"studentId"`
	SchoolID         uint64           `json:"schoolId"`
	StudentName      string           `json:"studentName"`
	DateOfBirth      interfaces.Date  `json:"dateOfBirth"`
	InstitutionName  string           `json:"institutionName"`
	CertificateTitle string           `json:"certificateTitle"`
	IssueDate        interfaces.Date  `json:"issueDate"`
	ExpiryDate       *interfaces.Date `json:"expiryDate,omitempty"`
	DocumentHash     string           `json:"documentHash"`
	IPFSCid          string           `json:"ipfsCid"`
	IsRevoked        bool             `json:"isRevoked"`
}

// VerificationResult is the outcome of checking a document hash against a stored credential.
type VerificationResult struct {
	IsValid   bool `json:"isValid"`
	IsRevoked bool `json:"isRevoked"`
	IsExpired bool `json:"isExpired"`
}

// Entry is one element of an enumeration. Exactly one of Value and Err is set.
type Entry[K, V any] struct {
	Key   K
	Value V
	Err   error
}

// InstitutionEntry is an element of AllInstitutions.
type InstitutionEntry = Entry[common.Address, *InstitutionRecord]

// Reader performs contract reads through the session's binding.
type Reader struct {
	bindings BindingSource
	log      *slog.Logger
}

func NewReader(bindings BindingSource, log *slog.Logger) *Reader {
	return &Reader{bindings: bindings, log: log}
}

// readOne runs a single read and maps its failure onto the error taxonomy. A revert whose
// reason is the contract's "not found" signature becomes ErrNotFound.
func readOne[T any](ctx context.Context, r *Reader, query string, read func(context.Context, interfaces.CredentialRegistry) (T, error)) (T, error) {
	var zero T

	binding, err := r.bindings.Binding(ctx)
	if err != nil {
		return zero, err
	}

	value, err := read(ctx, binding.Registry())
	err = classifyRead(err)
	metrics.RecordRead(query, err)
	if err != nil {
		r.log.Debug("Registry read failed", "query", query, "err", err)
		return zero, err
	}
	return value, nil
}

// readAll lists the keys of a collection, then reads every key's detail. A failing detail
// read is recorded in its entry and the enumeration continues.
func readAll[K, V any](
	ctx context.Context,
	r *Reader,
	query string,
	list func(context.Context, interfaces.CredentialRegistry) ([]K, error),
	detail func(context.Context, interfaces.CredentialRegistry, K) (V, error),
) ([]Entry[K, V], error) {
	keys, err := readOne(ctx, r, query+"_keys", list)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry[K, V], 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		value, err := readOne(ctx, r, query, func(ctx context.Context, reg interfaces.CredentialRegistry) (V, error) {
			return detail(ctx, reg, key)
		})
		if err != nil {
			r.log.Warn("Skipping unreadable entry", "query", query, "key", key, "err", err)
			entries = append(entries, Entry[K, V]{Key: key, Err: err})
			continue
		}
		entries = append(entries, Entry[K, V]{Key: key, Value: value})
	}
	return entries, nil
}

func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	err = registry.ClassifyError(err)

	var revertErr *interfaces.RevertError
	if errors.As(err, &revertErr) && revertErr.IndicatesMissingRecord() {
		return fmt.Errorf("%w: %w", interfaces.ErrNotFound, err)
	}
	return err
}

// Owner returns the contract owner.
func (r *Reader) Owner(ctx context.Context) (common.Address, error) {
	return readOne(ctx, r, "owner", func(ctx context.Context, reg interfaces.CredentialRegistry) (common.Address, error) {
		return reg.Owner(ctx)
	})
}

// Institution returns a registered institution. Unknown and unregistered addresses yield ErrNotFound.
func (r *Reader) Institution(ctx context.Context, address common.Address) (*InstitutionRecord, error) {
	return readOne(ctx, r, "institution", func(ctx context.Context, reg interfaces.CredentialRegistry) (*InstitutionRecord, error) {
		return institutionRecord(ctx, reg, address)
	})
}

// InstitutionRegistered reports whether address is a registered institution.
func (r *Reader) InstitutionRegistered(ctx context.Context, address common.Address) (bool, error) {
	return readOne(ctx, r, "institution_registered", func(ctx context.Context, reg interfaces.CredentialRegistry) (bool, error) {
		inst, err := reg.InstitutionsData(ctx, address)
		if err != nil {
			return false, err
		}
		return inst.IsRegistered, nil
	})
}

// InstitutionCodeExists reports whether an institution already uses code.
func (r *Reader) InstitutionCodeExists(ctx context.Context, code uint64) (bool, error) {
	return readOne(ctx, r, "institution_code_exists", func(ctx context.Context, reg interfaces.CredentialRegistry) (bool, error) {
		return reg.InstitutionCodeExists(ctx, new(big.Int).SetUint64(code))
	})
}

// AllInstitutions lists every registered institution with its details.
func (r *Reader) AllInstitutions(ctx context.Context) ([]InstitutionEntry, error) {
	return readAll(ctx, r, "institutions",
		func(ctx context.Context, reg interfaces.CredentialRegistry) ([]common.Address, error) {
			return reg.AllRegisteredInstitutionAddresses(ctx)
		},
		institutionRecord,
	)
}

// Credential returns the credential stored for a student and school. A missing credential yields ErrNotFound.
func (r *Reader) Credential(ctx context.Context, studentID, schoolID uint64) (*CredentialRecord, error) {
	return readOne(ctx, r, "credential", func(ctx context.Context, reg interfaces.CredentialRegistry) (*CredentialRecord, error) {
		raw, err := reg.SearchCredential(ctx, new(big.Int).SetUint64(studentID), new(big.Int).SetUint64(schoolID))
		if err != nil {
			return nil, err
		}
		return credentialRecord(raw)
	})
}

// Verify checks documentHash against the credential stored for a student and school.
func (r *Reader) Verify(ctx context.Context, studentID, schoolID uint64, documentHash string) (*VerificationResult, error) {
	return readOne(ctx, r, "verify", func(ctx context.Context, reg interfaces.CredentialRegistry) (*VerificationResult, error) {
		v, err := reg.VerifyCredential(ctx, new(big.Int).SetUint64(studentID), new(big.Int).SetUint64(schoolID), documentHash)
		if err != nil {
			return nil, err
		}
		return &VerificationResult{IsValid: v.IsValid, IsRevoked: v.IsRevoked, IsExpired: v.IsExpired}, nil
	})
}

func institutionRecord(ctx context.Context, reg interfaces.CredentialRegistry, address common.Address) (*InstitutionRecord, error) {
	inst, err := reg.InstitutionsData(ctx, address)
	if err != nil {
		return nil, err
	}
	if !inst.IsRegistered || inst.InstitutionAddress == (common.Address{}) {
		return nil, fmt.Errorf("%w: institution %s", interfaces.ErrNotFound, address.Hex())
	}

	code, err := interfaces.Uint64FromBig(inst.Code)
	if err != nil {
		return nil, fmt.Errorf("institution %s: %w", address.Hex(), err)
	}

	return &InstitutionRecord{
		Address:      inst.InstitutionAddress,
		Name:         inst.Name,
		Code:         code,
		IsRegistered: inst.IsRegistered,
	}, nil
}

func credentialRecord(raw *interfaces.Credential) (*CredentialRecord, error) {
	studentID, err := interfaces.Uint64FromBig(raw.StudentId)
	if err != nil {
		return nil, fmt.Errorf("student id: %w", err)
	}
	schoolID, err := interfaces.Uint64FromBig(raw.SchoolId)
	if err != nil {
		return nil, fmt.Errorf("school id: %w", err)
	}

	dateOfBirth, err := interfaces.DateFromTimestamp(raw.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("date of birth: %w", err)
	}
	issueDate, err := interfaces.DateFromTimestamp(raw.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("issue date: %w", err)
	}

	var expiryDate *interfaces.Date
	if raw.ExpiryDate != nil && raw.ExpiryDate.Sign() > 0 {
		expiry, err := interfaces.DateFromTimestamp(raw.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("expiry date: %w", err)
		}
		expiryDate = &expiry
	}

	return &CredentialRecord{
		StudentID:        studentID,
		SchoolID:         schoolID,
		StudentName:      raw.StudentName,
		DateOfBirth:      dateOfBirth,
		InstitutionName:  raw.InstitutionName,
		CertificateTitle: raw.CertificateTitle,
		IssueDate:        issueDate,
		ExpiryDate:       expiryDate,
		DocumentHash:     raw.DocumentHash,
		IPFSCid:          raw.IpfsCid,
		IsRevoked:        raw.IsRevoked,
	}, nil
}
