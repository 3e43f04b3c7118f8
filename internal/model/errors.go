package model

import "errors"

var (
	// Subject related errors
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrSubjectAlreadyExists = errors.New("subject already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")

	// Unit related errors
	ErrUnitNotFound  = errors.New("unit not found")
	ErrUnitNameTaken = errors.New("unit name already taken")
	ErrUnitCycle     = errors.New("unit hierarchy contains a cycle")
	ErrUnitRoot      = errors.New("unit hierarchy must have exactly one root")

	// Entity related errors
	ErrEntityNotFound = errors.New("entity not found")
	ErrUnknownKind    = errors.New("unknown entity kind")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
