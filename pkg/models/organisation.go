package models

import "time"

type Organisation struct {
	ID      string    `json:"id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func NewOrganisation(id, name string) (*Organisation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &Organisation{ID: id, Name: name}, nil
}

// Tenant is the administrative owner of organisations.
type Tenant struct {
	ID      string    `json:"id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func NewTenant(id, name string) (*Tenant, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &Tenant{ID: id, Name: name}, nil
}
