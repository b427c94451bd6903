package repository

import (
	"errors"
	"fmt"
	"net"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return err != nil && pgCode(err) == pgUniqueViolation
}

// もう一度 Tx をやり直せば通る可能性があるもの
func isRetryable(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}

// DB に届かない／DB 側が受け付けない
func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	switch pgCode(err) {
	case pgTooManyConnections, pgAdminShutdown:
		return true
	}
	return false
}

// インフラ起因のエラーを ErrInventoryUnavailable に寄せる。
// 業務エラー（在庫不足など）はそのまま返す。
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) || isUnavailable(err) {
		return fmt.Errorf("%w: %v", model.ErrInventoryUnavailable, err)
	}
	return err
}
