package registration

import "errors"

var (
	// ErrFirstNameRequired is returned when the first name is missing
	ErrFirstNameRequired = errors.New("first name is required")

	// ErrLastNameRequired is returned when the last name is missing
	ErrLastNameRequired = errors.New("last name is required")

	// ErrDateOfBirthInFuture is returned for an impossible date of birth
	ErrDateOfBirthInFuture = errors.New("date of birth is in the future")

	// ErrPatientNotFound is returned when a patient id is unknown
	ErrPatientNotFound = errors.New("patient not found")

	// ErrAlreadyRegistered is returned when the patient already has a visit
	// for the event
	ErrAlreadyRegistered = errors.New("patient already registered for event")
)
