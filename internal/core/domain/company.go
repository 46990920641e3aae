package domain

import "time"

// Address is the postal address of a company.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// CompanySettings holds the organisation-wide authentication switches.
type CompanySettings struct {
	AllowSelfRegistration    bool     `json:"allowSelfRegistration"`
	RequireEmailVerification bool     `json:"requireEmailVerification"`
	EnableMFA                bool     `json:"enableMFA"`
	SSOProviders             []string `json:"ssoProviders"`
}

// SupportsSSO reports whether provider is enabled for the company.
func (s CompanySettings) SupportsSSO(provider SSOProvider) bool {
	for _, p := range s.SSOProviders {
		if p == string(provider) {
			return true
		}
	}
	return false
}

// Company is the organisation paired 1:1 with the active session.
type Company struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Domain    string          `json:"domain,omitempty"`
	Industry  string          `json:"industry,omitempty"`
	Size      int             `json:"size,omitempty"`
	Address   *Address        `json:"address,omitempty"`
	Settings  CompanySettings `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
