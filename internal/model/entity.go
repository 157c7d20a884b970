package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// EntityKind tags the market participant variant.
type EntityKind string

const (
	EntityInvestor EntityKind = "investor"
	EntityFund     EntityKind = "investment_fund"
	EntityCompany  EntityKind = "company"
	EntityPlayer   EntityKind = "player"
)

// Autonomous reports whether entities of this kind run a background
// worker. The player only acts through explicit commands.
func (k EntityKind) Autonomous() bool {
	return k != EntityPlayer
}

// Entity is the passive record of a market participant: a budget and a
// briefcase. The autonomous behavior lives in the worker package and is
// scheduled against this record, so the data model stays independent of
// the concurrency strategy.
//
// Budget mutations are atomic; Debit is all-or-nothing.
type Entity struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`

	// PESEL is the numeric identifier carried by investors.
	PESEL string `json:"pesel,omitempty"`

	// Financial figures carried by companies.
	Revenue decimal.Decimal `json:"revenue,omitempty"`
	Profit  decimal.Decimal `json:"profit,omitempty"`
	Capital decimal.Decimal `json:"capital,omitempty"`

	// Issued is the asset this entity issues: the company's share or the
	// fund's unit. Nil for investors and the player.
	Issued *Asset `json:"-"`

	Briefcase *Briefcase `json:"-"`

	mu     sync.Mutex
	budget decimal.Decimal
}

// NewEntity creates an entity with a starting budget and an empty
// briefcase. Kind-specific fields (PESEL, company figures, issued asset)
// are set by the orchestrator at creation time.
func NewEntity(id string, kind EntityKind, name string, budget decimal.Decimal) *Entity {
	return &Entity{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Briefcase: NewBriefcase(),
		budget:    budget,
	}
}

// Budget returns the current budget.
func (e *Entity) Budget() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget
}

// Credit adds amount to the budget and returns the new budget.
func (e *Entity) Credit(amount decimal.Decimal) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budget = e.budget.Add(amount)
	return e.budget
}

// Debit subtracts amount if the budget covers it. Returns false and
// leaves the budget unchanged otherwise.
func (e *Entity) Debit(amount decimal.Decimal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.budget.LessThan(amount) {
		return false
	}
	e.budget = e.budget.Sub(amount)
	return true
}
