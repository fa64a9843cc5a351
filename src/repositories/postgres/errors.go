package postgres

import (
	"errors"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// translate maps driver errors onto repository sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repositories.ErrConflict
	}
	return err
}
