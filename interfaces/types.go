// Package interfaces defines the core interfaces and types for the credential registry client.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment identifies the registry contract the client talks to.
type Deployment struct {
	Address common.Address
	ChainID *big.Int
}

// NewDeployment parses a hex contract address and a decimal chain id.
func NewDeployment(addressHex, chainID string) (Deployment, error) {
	if !common.IsHexAddress(addressHex) {
		return Deployment{}, fmt.Errorf("invalid contract address %q", addressHex)
	}

	id, ok := new(big.Int).SetString(chainID, 10)
	if !ok || id.Sign() <= 0 {
		return Deployment{}, fmt.Errorf("invalid chain id %q", chainID)
	}

	return Deployment{Address: common.HexToAddress(addressHex), ChainID: id}, nil
}

// DateLayout is the calendar date format used for input and display.
const DateLayout = "2006-01-02"

// Date is a UTC calendar day. On chain it is stored as unix seconds at midnight UTC.
type Date struct {
	t time.Time
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// DateFromTimestamp converts on-chain unix seconds into a Date.
func DateFromTimestamp(ts *big.Int) (Date, error) {
	if ts == nil || !ts.IsInt64() {
		return Date{}, errors.New("timestamp out of range")
	}
	t := time.Unix(ts.Int64(), 0).UTC()
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}, nil
}

// NewDate returns the Date containing t.
func NewDate(t time.Time) Date {
	t = t.UTC()
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Timestamp returns the unix seconds representation used by the contract.
func (d Date) Timestamp() *big.Int {
	return big.NewInt(d.t.Unix())
}

func (d Date) Time() time.Time {
	return d.t
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

func (d Date) String() string {
	return d.t.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Uint64FromBig converts a contract integer into a native identifier.
func Uint64FromBig(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("integer %v does not fit into uint64", v)
	}
	return v.Uint64(), nil
}
