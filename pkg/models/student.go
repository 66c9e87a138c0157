package models

import "time"

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Student struct {
	OrganisationID string    `json:"-"`
	ID             string    `json:"id,omitempty"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Gender         Gender    `json:"gender,omitempty"`
	BirthYear      int       `json:"birthYear,omitempty"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

func NewStudent(organisationID, id, firstName, lastName string, gender Gender, birthYear int) (*Student, error) {
	if organisationID == "" {
		return nil, ErrOrganisationIDRequired
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if gender != "" && gender != GenderMale && gender != GenderFemale {
		return nil, ErrInvalidGender
	}
	if birthYear < 0 {
		return nil, ErrInvalidBirthYear
	}

	return &Student{
		OrganisationID: organisationID,
		ID:             id,
		FirstName:      firstName,
		LastName:       lastName,
		Gender:         gender,
		BirthYear:      birthYear,
	}, nil
}
