package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// SupabaseStore - Supabase(PostgREST) 기반 Store 구현
type SupabaseStore struct {
	supabase *supabase.Client
	log      *zap.Logger
}

// NewSupabaseStore - Database 클라이언트 생성
func NewSupabaseStore(client *supabase.Client, log *zap.Logger) *SupabaseStore {
	return &SupabaseStore{
		supabase: client,
		log:      log.Named("database"),
	}
}

// NewSupabaseClient - Supabase 클라이언트 생성 (DB + Storage 공용)
func NewSupabaseClient(url, serviceKey string) (*supabase.Client, error) {
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return client, nil
}

func (s *SupabaseStore) Find(ctx context.Context, table string, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	columns := q.Columns
	if columns == "" {
		columns = "*"
	}

	fb := applyFilters(s.supabase.From(table).Select(columns, "", false), q.Filters)
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: !q.Descending})
	}
	if q.Limit > 0 {
		fb = fb.Range(q.Offset, q.Offset+q.Limit-1, "")
	}

	data, _, err := fb.Execute()
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}

	// JSON 파싱
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", table, err)
	}
	return nil
}

func (s *SupabaseStore) Insert(ctx context.Context, table string, rows interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, _, err := s.supabase.From(table).
		Insert(rows, false, "", "representation", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s insert response: %w", table, err)
	}
	return nil
}

func (s *SupabaseStore) Update(ctx context.Context, table string, values map[string]interface{}, q Query, out interface{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, errUnfiltered
	}

	data, _, err := applyFilters(s.supabase.From(table).Update(values, "representation", ""), q.Filters).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}

	// 반환된 행 수 = 조건을 만족한 행 수
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse %s update response: %w", table, err)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, fmt.Errorf("failed to parse %s update response: %w", table, err)
		}
	}
	return len(rows), nil
}

func (s *SupabaseStore) Delete(ctx context.Context, table string, q Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(q.Filters) == 0 {
		return errUnfiltered
	}

	_, _, err := applyFilters(s.supabase.From(table).Delete("", ""), q.Filters).Execute()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

func (s *SupabaseStore) Count(ctx context.Context, table string, q Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_, count, err := applyFilters(s.supabase.From(table).Select("*", "exact", true), q.Filters).Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// RPC - Postgres 함수 호출 (예: increment_concept_usage)
func (s *SupabaseStore) RPC(ctx context.Context, fn string, params map[string]interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := strings.TrimSpace(s.supabase.Rpc(fn, "", params))
	if result == "" {
		return fmt.Errorf("rpc %s returned empty response", fn)
	}

	// PostgREST 에러 응답 형태: {"code": "...", "message": "..."}
	var rpcErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if strings.HasPrefix(result, "{") && json.Unmarshal([]byte(result), &rpcErr) == nil && rpcErr.Code != "" && rpcErr.Message != "" {
		return fmt.Errorf("rpc %s failed (%s): %s", fn, rpcErr.Code, rpcErr.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(result), out); err != nil {
		return fmt.Errorf("failed to parse rpc %s response: %w", fn, err)
	}
	return nil
}

func applyFilters(fb *postgrest.FilterBuilder, filters []Filter) *postgrest.FilterBuilder {
	for _, f := range filters {
		switch f.Operator {
		case OpEq:
			fb = fb.Eq(f.Column, formatValue(f.Value))
		case OpNeq:
			fb = fb.Neq(f.Column, formatValue(f.Value))
		case OpGt:
			fb = fb.Gt(f.Column, formatValue(f.Value))
		case OpGte:
			fb = fb.Gte(f.Column, formatValue(f.Value))
		case OpLt:
			fb = fb.Lt(f.Column, formatValue(f.Value))
		case OpLte:
			fb = fb.Lte(f.Column, formatValue(f.Value))
		case OpIn:
			values, _ := f.Value.([]string)
			fb = fb.In(f.Column, values)
		case OpIsNull:
			fb = fb.Is(f.Column, "null")
		}
	}
	return fb
}

// formatValue - PostgREST 필터는 문자열 값만 받는다
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
