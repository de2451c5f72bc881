// Package filing defines the statutory filing obligations tracked per client:
// the filing-type reference data, the client aggregate with its
// records-received / completed markers, filing assignments and deadline
// overrides.
package filing

import (
	"sort"
	"strings"

	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// FilingType enumeration
// ─────────────────────────────────────────────────────────────────────────────

// FilingType identifies a category of statutory obligation.
type FilingType string

const (
	// CorporationTaxPayment is the corporation tax payment due 9 months and
	// 1 day after the accounting year-end.
	CorporationTaxPayment FilingType = "corporation_tax_payment"

	// CT600Filing is the company tax return due 12 months after year-end.
	CT600Filing FilingType = "ct600_filing"

	// CompaniesHouseAccounts is the annual accounts filing due 9 months after
	// year-end for private companies.
	CompaniesHouseAccounts FilingType = "companies_house"

	// VATReturn is the quarterly VAT return, due 1 month and 7 days after the
	// end of the client's VAT quarter.
	VATReturn FilingType = "vat_return"

	// SelfAssessment is the personal tax return due 31 January following the
	// tax year.
	SelfAssessment FilingType = "self_assessment"
)

// ClientType classifies the legal form of a client.
type ClientType string

const (
	ClientLimitedCompany ClientType = "limited_company"
	ClientSoleTrader     ClientType = "sole_trader"
	ClientPartnership    ClientType = "partnership"
	ClientLLP            ClientType = "llp"
)

// IsValid reports whether ct is a known client type.
func (ct ClientType) IsValid() bool {
	switch ct {
	case ClientLimitedCompany, ClientSoleTrader, ClientPartnership, ClientLLP:
		return true
	}
	return false
}

// Definition is the immutable reference data of a filing type.
type Definition struct {
	Type        FilingType   `json:"type"`
	DisplayName string       `json:"display_name"`
	ClientTypes []ClientType `json:"client_types"`

	// Annual types roll over by advancing the client's year-end.
	Annual bool `json:"annual"`

	// RequiresVAT types only apply to VAT-registered clients.
	RequiresVAT bool `json:"requires_vat"`
}

// AppliesTo reports whether the filing type applies to the client type.
func (d Definition) AppliesTo(ct ClientType) bool {
	for _, c := range d.ClientTypes {
		if c == ct {
			return true
		}
	}
	return false
}

var allClientTypes = []ClientType{ClientLimitedCompany, ClientSoleTrader, ClientPartnership, ClientLLP}

var registry = map[FilingType]Definition{
	CorporationTaxPayment: {
		Type:        CorporationTaxPayment,
		DisplayName: "Corporation Tax Payment",
		ClientTypes: []ClientType{ClientLimitedCompany},
		Annual:      true,
	},
	CT600Filing: {
		Type:        CT600Filing,
		DisplayName: "CT600 Filing",
		ClientTypes: []ClientType{ClientLimitedCompany},
		Annual:      true,
	},
	CompaniesHouseAccounts: {
		Type:        CompaniesHouseAccounts,
		DisplayName: "Companies House Accounts",
		ClientTypes: []ClientType{ClientLimitedCompany, ClientLLP},
		Annual:      true,
	},
	VATReturn: {
		Type:        VATReturn,
		DisplayName: "VAT Return",
		ClientTypes: allClientTypes,
		RequiresVAT: true,
	},
	SelfAssessment: {
		Type:        SelfAssessment,
		DisplayName: "Self Assessment",
		ClientTypes: []ClientType{ClientSoleTrader, ClientPartnership},
	},
}

// Lookup returns the definition of ft.
func Lookup(ft FilingType) (Definition, bool) {
	d, ok := registry[ft]
	return d, ok
}

// All returns every filing type definition ordered by identifier.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// IsValid reports whether ft is registered.
func (ft FilingType) IsValid() bool {
	_, ok := registry[ft]
	return ok
}

// IsAnnual reports whether rollover of ft advances the year-end.
func (ft FilingType) IsAnnual() bool {
	return registry[ft].Annual
}

// DisplayName returns the human label, or the raw identifier if unknown.
func (ft FilingType) DisplayName() string {
	if d, ok := registry[ft]; ok {
		return d.DisplayName
	}
	return string(ft)
}

// ParseFilingType validates and normalises s.
func ParseFilingType(s string) (FilingType, error) {
	ft := FilingType(strings.ToLower(strings.TrimSpace(s)))
	if !ft.IsValid() {
		return "", errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(s)
	}
	return ft, nil
}
