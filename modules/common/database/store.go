package database

import (
	"context"
	"errors"
)

// ErrNotFound - 단건 조회 결과가 없을 때
var ErrNotFound = errors.New("record not found")

// Operator - 필터 연산자
type Operator string

const (
	OpEq     Operator = "eq"
	OpNeq    Operator = "neq"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
	OpIsNull Operator = "is_null"
)

// Filter - 컬럼 조건 하나
type Filter struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// Query - 테이블 조회/수정 조건 (필터, 정렬, 페이지네이션)
type Query struct {
	Columns    string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// Where - 빈 Query 시작점 (Eq, In, Order ... 체이닝)
func Where() Query { return Query{} }

func (q Query) Eq(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpEq, Value: value})
}

func (q Query) Neq(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpNeq, Value: value})
}

func (q Query) Gt(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpGt, Value: value})
}

func (q Query) Gte(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpGte, Value: value})
}

func (q Query) Lt(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpLt, Value: value})
}

func (q Query) Lte(column string, value interface{}) Query {
	return q.with(Filter{Column: column, Operator: OpLte, Value: value})
}

func (q Query) In(column string, values ...string) Query {
	return q.with(Filter{Column: column, Operator: OpIn, Value: values})
}

func (q Query) IsNull(column string) Query {
	return q.with(Filter{Column: column, Operator: OpIsNull})
}

func (q Query) Select(columns string) Query {
	q.Columns = columns
	return q
}

func (q Query) Order(column string, descending bool) Query {
	q.OrderBy = column
	q.Descending = descending
	return q
}

func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}

func (q Query) with(f Filter) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, f)
	return q
}

// Store - 테이블 단위 영속성 계약
// Update는 조건을 만족한 행 수를 반환하며, 0이면 조건부 쓰기가 실패한 것이다.
type Store interface {
	Find(ctx context.Context, table string, q Query, out interface{}) error
	Insert(ctx context.Context, table string, rows interface{}, out interface{}) error
	Update(ctx context.Context, table string, values map[string]interface{}, q Query, out interface{}) (int, error)
	Delete(ctx context.Context, table string, q Query) error
	Count(ctx context.Context, table string, q Query) (int64, error)
	RPC(ctx context.Context, fn string, params map[string]interface{}, out interface{}) error
}

var errUnfiltered = errors.New("refusing to modify a table without filters")
