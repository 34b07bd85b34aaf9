package errx

import (
	"database/sql"
	"errors"
	"net/http"
)

const (
	// StoreErrorMessage describes relational store failures.
	StoreErrorMessage = "database operation failed"
	// NotFoundMessage describes a missing row.
	NotFoundMessage = "record not found"
)

// WrapStore maps database/sql errors to AppError. sql.ErrNoRows becomes a 404.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &AppError{Err: err, Status: http.StatusNotFound, Message: NotFoundMessage, Kind: KindPersistence}
	}

	return &AppError{Err: err, Status: http.StatusInternalServerError, Message: StoreErrorMessage, Kind: KindPersistence}
}
