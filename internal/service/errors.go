package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrInvalidEmail = errors.New("invalid email")
	ErrRateLimited  = errors.New("rate limited")
)

// IssuanceErrorKind clasifica por que no se pudo persistir un codigo nuevo.
type IssuanceErrorKind string

const (
	IssuancePermission    IssuanceErrorKind = "permission"
	IssuanceConflict      IssuanceErrorKind = "conflict"
	IssuanceMissingSchema IssuanceErrorKind = "missing_schema"
	IssuanceUnknown       IssuanceErrorKind = "unknown"
)

// IssuanceError es fatal: sin fila no hay codigo que entregar.
type IssuanceError struct {
	Kind IssuanceErrorKind
	Err  error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *IssuanceError) Unwrap() error {
	return e.Err
}

// Message devuelve una indicacion accionable para operadores.
func (e *IssuanceError) Message() string {
	switch e.Kind {
	case IssuancePermission:
		return "otp store rejected the write: grant INSERT/UPDATE on otp_codes to the service role"
	case IssuanceConflict:
		return "another active code was written concurrently for this email: retry the request"
	case IssuanceMissingSchema:
		return "otp_codes storage is missing: run the migrations"
	default:
		return "could not persist the login code"
	}
}

const (
	pgInsufficientPrivilege = "42501"
	pgUniqueViolation       = "23505"
	pgUndefinedTable        = "42P01"
	pgUndefinedColumn       = "42703"
	pgInvalidSchemaName     = "3F000"
	mongoUnauthorized       = 13
)

func classifyIssuanceError(err error) *IssuanceError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInsufficientPrivilege:
			return &IssuanceError{Kind: IssuancePermission, Err: err}
		case pgUniqueViolation:
			return &IssuanceError{Kind: IssuanceConflict, Err: err}
		case pgUndefinedTable, pgUndefinedColumn, pgInvalidSchemaName:
			return &IssuanceError{Kind: IssuanceMissingSchema, Err: err}
		}
		return &IssuanceError{Kind: IssuanceUnknown, Err: err}
	}

	if mongo.IsDuplicateKeyError(err) {
		return &IssuanceError{Kind: IssuanceConflict, Err: err}
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == mongoUnauthorized {
		return &IssuanceError{Kind: IssuancePermission, Err: err}
	}

	// Drivers que solo exponen texto.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not authorized"):
		return &IssuanceError{Kind: IssuancePermission, Err: err}
	case strings.Contains(msg, "duplicate key"):
		return &IssuanceError{Kind: IssuanceConflict, Err: err}
	case strings.Contains(msg, "does not exist"):
		return &IssuanceError{Kind: IssuanceMissingSchema, Err: err}
	}
	return &IssuanceError{Kind: IssuanceUnknown, Err: err}
}

// Warning registra una escritura secundaria que fallo sin abortar la operacion principal.
type Warning struct {
	Operation string
	Err       error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Operation, w.Err)
}
