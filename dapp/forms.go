package dapp

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// Institution codes are nine-digit numbers.
const (
	minInstitutionCode = 100000000
	maxInstitutionCode = 999999999
)

// Validation messages.
const (
	msgInstitutionFields = "Please fill in all institution details."
	msgInstitutionCode   = "Institution Code must be a 9-digit number."
	msgAddress           = "Please enter a valid institution address."
	msgIDs               = "Student ID and School ID must be valid numbers."
	msgKeyFields         = "Please fill Student ID and School ID."
	msgCredentialFields  = "Please fill all required fields and ensure the document is uploaded to IPFS."
	msgDateFormat        = "Invalid Date format. Please use YYYY-MM-DD."
	msgExpiry            = "Expiry date must be after issue date."
	msgDocumentHash      = "Document hash must be a 64 character hex SHA-256 digest."
	msgVerifyFields      = "Please enter Student ID, School ID and upload the document for verification."
)

// RegisterInstitutionForm is the input of RegisterInstitution.
type RegisterInstitutionForm struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

type institutionInput struct {
	address common.Address
	name    string
	code    uint64
}

func (f RegisterInstitutionForm) validate() (*institutionInput, error) {
	name := strings.TrimSpace(f.Name)
	if strings.TrimSpace(f.Address) == "" || name == "" || strings.TrimSpace(f.Code) == "" {
		return nil, interfaces.NewValidationError("institution", msgInstitutionFields)
	}

	address, err := parseAddress("address", f.Address)
	if err != nil {
		return nil, err
	}

	code, err := strconv.ParseUint(strings.TrimSpace(f.Code), 10, 64)
	if err != nil || code < minInstitutionCode || code > maxInstitutionCode {
		return nil, interfaces.NewValidationError("code", msgInstitutionCode)
	}

	return &institutionInput{address: address, name: name, code: code}, nil
}

// InstitutionForm identifies an institution by address.
type InstitutionForm struct {
	Address string `json:"address"`
}

func (f InstitutionForm) validate() (common.Address, error) {
	if strings.TrimSpace(f.Address) == "" {
		return common.Address{}, interfaces.NewValidationError("address", "Please enter an institution address.")
	}
	return parseAddress("address", f.Address)
}

// CredentialKeyForm identifies a credential by student and school id.
type CredentialKeyForm struct {
	StudentID string `json:"studentId"`
	SchoolID  string `json:"schoolId"`
}

func (f CredentialKeyForm) validate() (uint64, uint64, error) {
	if strings.TrimSpace(f.StudentID) == "" || strings.TrimSpace(f.SchoolID) == "" {
		return 0, 0, interfaces.NewValidationError("studentId", msgKeyFields)
	}
	return parseIDs(f.StudentID, f.SchoolID)
}

// StoreCredentialForm is the input of StoreCredential. An empty DocumentHash or IPFSCid is
// taken from the selected and uploaded document.
type StoreCredentialForm struct {
	StudentID        string `json:"studentId"`
	SchoolID         string `json:"schoolId"`
	StudentName      string `json:"studentName"`
	DateOfBirth      string `json:"dateOfBirth"`
	InstitutionName  string `json:"institutionName"`
	CertificateTitle string `json:"certificateTitle"`
	IssueDate        string `json:"issueDate"`
	ExpiryDate       string `json:"expiryDate,omitempty"`
	DocumentHash     string `json:"documentHash,omitempty"`
	IPFSCid          string `json:"ipfsCid,omitempty"`
}

func (f StoreCredentialForm) validate() (*interfaces.Credential, error) {
	required := []string{f.StudentID, f.SchoolID, f.StudentName, f.DateOfBirth, f.InstitutionName,
		f.CertificateTitle, f.IssueDate, f.DocumentHash, f.IPFSCid}
	for _, value := range required {
		if strings.TrimSpace(value) == "" {
			return nil, interfaces.NewValidationError("credential", msgCredentialFields)
		}
	}

	studentID, schoolID, err := parseIDs(f.StudentID, f.SchoolID)
	if err != nil {
		return nil, err
	}

	dateOfBirth, err := parseDate("dateOfBirth", f.DateOfBirth)
	if err != nil {
		return nil, err
	}
	issueDate, err := parseDate("issueDate", f.IssueDate)
	if err != nil {
		return nil, err
	}

	expiry := new(big.Int)
	if strings.TrimSpace(f.ExpiryDate) != "" {
		expiryDate, err := parseDate("expiryDate", f.ExpiryDate)
		if err != nil {
			return nil, err
		}
		if !issueDate.Before(expiryDate) {
			return nil, interfaces.NewValidationError("expiryDate", msgExpiry)
		}
		expiry = expiryDate.Timestamp()
	}

	hash, err := parseDocumentHash(f.DocumentHash)
	if err != nil {
		return nil, err
	}

	return &interfaces.Credential{
		StudentId:        new(big.Int).SetUint64(studentID),
		SchoolId:         new(big.Int).SetUint64(schoolID),
		StudentName:      strings.TrimSpace(f.StudentName),
		DateOfBirth:      dateOfBirth.Timestamp(),
		InstitutionName:  strings.TrimSpace(f.InstitutionName),
		CertificateTitle: strings.TrimSpace(f.CertificateTitle),
		IssueDate:        issueDate.Timestamp(),
		ExpiryDate:       expiry,
		DocumentHash:     hash,
		IpfsCid:          strings.TrimSpace(f.IPFSCid),
	}, nil
}

// VerifyForm is the input of VerifyCredential. An empty DocumentHash is taken from the
// selected document.
type VerifyForm struct {
	StudentID    string `json:"studentId"`
	SchoolID     string `json:"schoolId"`
	DocumentHash string `json:"documentHash,omitempty"`
}

type verifyInput struct {
	studentID uint64
	schoolID  uint64
	hash      string
}

func (f VerifyForm) validate() (*verifyInput, error) {
	if strings.TrimSpace(f.StudentID) == "" || strings.TrimSpace(f.SchoolID) == "" || strings.TrimSpace(f.DocumentHash) == "" {
		return nil, interfaces.NewValidationError("verify", msgVerifyFields)
	}

	studentID, schoolID, err := parseIDs(f.StudentID, f.SchoolID)
	if err != nil {
		return nil, err
	}
	hash, err := parseDocumentHash(f.DocumentHash)
	if err != nil {
		return nil, err
	}
	return &verifyInput{studentID: studentID, schoolID: schoolID, hash: hash}, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, interfaces.NewValidationError(field, msgAddress)
	}
	return common.HexToAddress(value), nil
}

func parseIDs(studentID, schoolID string) (uint64, uint64, error) {
	student, err := strconv.ParseUint(strings.TrimSpace(studentID), 10, 64)
	if err != nil {
		return 0, 0, interfaces.NewValidationError("studentId", msgIDs)
	}
	school, err := strconv.ParseUint(strings.TrimSpace(schoolID), 10, 64)
	if err != nil {
		return 0, 0, interfaces.NewValidationError("schoolId", msgIDs)
	}
	return student, school, nil
}

func parseDate(field, value string) (interfaces.Date, error) {
	d, err := interfaces.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return interfaces.Date{}, interfaces.NewValidationError(field, msgDateFormat)
	}
	return d, nil
}

// parseDocumentHash accepts a hex SHA-256 digest with or without 0x prefix and returns it
// in the lowercase form produced by the hasher.
func parseDocumentHash(value string) (string, error) {
	value = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	if len(value) != 64 {
		return "", interfaces.NewValidationError("documentHash", msgDocumentHash)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return "", interfaces.NewValidationError("documentHash", msgDocumentHash)
	}
	return value, nil
}
