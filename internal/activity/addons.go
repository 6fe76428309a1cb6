package activity

import (
	"strconv"
	"strings"
)

// AddonConfig lists which additional information participants must supply.
type AddonConfig struct {
	HomeAddress      bool     `json:"homeAddress,omitempty"`
	BillingAddress   bool     `json:"billingAddress,omitempty"`
	TShirtSize       bool     `json:"tShirtSize,omitempty"`
	Roommate         bool     `json:"roommate,omitempty"`
	Deposit          *float64 `json:"deposit,omitempty"`
	AddonInformation string   `json:"addonInformation,omitempty"`
}

// AddonConfigForm is the submitted addon section of an activity form. Any
// non-empty flag counts as set.
type AddonConfigForm struct {
	HomeAddress      string
	BillingAddress   string
	TShirtSize       string
	Roommate         string
	Deposit          string
	AddonInformation string
}

// IsEmpty is true when no addon information is requested.
func (c AddonConfig) IsEmpty() bool {
	return !c.HomeAddress && !c.BillingAddress && !c.TShirtSize && !c.Roommate && c.Deposit == nil && c.AddonInformation == ""
}

// ReconcileAddonConfig builds the config from the form alone: whatever the
// form does not carry is dropped, nothing from current survives.
func ReconcileAddonConfig(_ AddonConfig, f AddonConfigForm) AddonConfig {
	next := AddonConfig{
		HomeAddress:      flag(f.HomeAddress),
		BillingAddress:   flag(f.BillingAddress),
		TShirtSize:       flag(f.TShirtSize),
		Roommate:         flag(f.Roommate),
		AddonInformation: strings.TrimSpace(f.AddonInformation),
	}
	if d := strings.TrimSpace(strings.Replace(f.Deposit, ",", ".", 1)); d != "" {
		if v, err := strconv.ParseFloat(d, 64); err == nil {
			next.Deposit = &v
		}
	}
	return next
}

func flag(v string) bool {
	return strings.TrimSpace(v) != ""
}

// Addon holds one member's answers to the addon config.
type Addon struct {
	HomeAddress    string `json:"homeAddress,omitempty"`
	BillingAddress string `json:"billingAddress,omitempty"`
	TShirtSize     string `json:"tShirtSize,omitempty"`
	Roommate       string `json:"roommate,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
}

func (a Addon) trimmed() Addon {
	return Addon{
		HomeAddress:    strings.TrimSpace(a.HomeAddress),
		BillingAddress: strings.TrimSpace(a.BillingAddress),
		TShirtSize:     strings.TrimSpace(a.TShirtSize),
		Roommate:       strings.TrimSpace(a.Roommate),
		Remarks:        strings.TrimSpace(a.Remarks),
	}
}
