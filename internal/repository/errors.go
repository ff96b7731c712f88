package repository

import (
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate は一意制約違反を表す。サービス層でConflictエラーに変換される。
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotFound は更新・削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict はステータスの比較更新で現在値が期待値と一致しなかったことを表す。
	ErrStatusConflict = errors.New("status changed concurrently")
)

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation = "23505"

// invalidTextRepresentation はUUID列に不正な文字列を渡したときのコード。
const invalidTextRepresentation = "22P02"

// isInvalidID はerrがUUIDとして解釈できないIDによるものかを判定する。
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == invalidTextRepresentation
	}
	return false
}

// isNoRows は該当行がないことを判定する。UUIDとして不正なIDは存在しない行として扱う。
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || isInvalidID(err)
}

// isUniqueViolation はerrがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// psql はPostgreSQLプレースホルダ（$1, $2, ...）を使うクエリビルダ。
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
