package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"expensetracker/pkg/metrics"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCategoryNotFound = errors.New("category not found in organization")
)

// scanner 同时适用于 pgx.Row 和 pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

// notFound 把 pgx.ErrNoRows 映射为 ErrNotFound，其它错误加上上下文
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// observe 记录一次查询耗时，用法：defer observe("select", "notifications", time.Now())
func observe(operation, table string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
}

// updateBuilder 拼接部分更新的 SET 子句
type updateBuilder struct {
	sets []string
	args []any
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// setRaw adds a SET fragment without a parameter, e.g. "category_id = NULL".
func (b *updateBuilder) setRaw(fragment string) {
	b.sets = append(b.sets, fragment)
}

func (b *updateBuilder) empty() bool {
	return len(b.sets) == 0
}

// arg appends a WHERE argument and returns its placeholder.
func (b *updateBuilder) arg(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *updateBuilder) clause() string {
	return strings.Join(b.sets, ", ")
}
