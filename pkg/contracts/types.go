// Package contracts models lease contracts and drives their lifecycle.
package contracts

import (
	"errors"
	"time"

	"github.com/aqarly/aqarly/pkg/status"
)

// Lookup and validation errors
var (
	ErrContractNotFound = errors.New("contract not found")
	ErrInvalidPeriod    = errors.New("contract start date must not be after end date")
)

// Contract is a lease agreement between an ownership and a tenant.
// Renewals chain through ParentID, forming a tree.
type Contract struct {
	ID            int64                 `json:"id"`
	UUID          string                `json:"uuid"`
	OwnershipID   int64                 `json:"ownership_id"`
	TenantID      int64                 `json:"tenant_id"`
	ParentID      *int64                `json:"parent_id,omitempty"`
	Status        status.ContractStatus `json:"status"`
	StartDate     time.Time             `json:"start_date"`
	EndDate       time.Time             `json:"end_date"`
	Rent          float64               `json:"rent"`
	Deposit       float64               `json:"deposit"`
	DepositStatus string                `json:"deposit_status,omitempty"`
	EjarCode      string                `json:"ejar_code,omitempty"`
	ApprovedBy    *int64                `json:"approved_by,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Validate checks the contract's field invariants
func (c *Contract) Validate() error {
	if c.StartDate.After(c.EndDate) {
		return ErrInvalidPeriod
	}
	return nil
}

// ContractUnit associates a contract with a unit, optionally overriding
// the contract-level rent for that unit
type ContractUnit struct {
	ContractID   int64    `json:"contract_id"`
	UnitID       int64    `json:"unit_id"`
	RentOverride *float64 `json:"rent_override,omitempty"`
}

// ContractTerm is a free-form key/value extension owned by one contract
type ContractTerm struct {
	ID         int64     `json:"id"`
	ContractID int64     `json:"contract_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
}
