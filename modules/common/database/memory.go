package database

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// RPCFunc - MemoryStore에 등록하는 서버 함수
type RPCFunc func(ctx context.Context, store *MemoryStore, params map[string]interface{}) (interface{}, error)

// MemoryStore - 로컬 개발(DATABASE_DRIVER=memory)과 테스트용 Store 구현
// 행은 JSON 왕복으로 정규화된 map으로 보관한다.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]map[string]interface{}
	rpcs   map[string]RPCFunc

	// 테스트에서 특정 테이블 쓰기를 실패시키기 위한 훅
	FailInsert map[string]error
	FailUpdate map[string]error
	FailDelete map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:     map[string][]map[string]interface{}{},
		rpcs:       map[string]RPCFunc{},
		FailInsert: map[string]error{},
		FailUpdate: map[string]error{},
		FailDelete: map[string]error{},
	}
}

// RegisterRPC - RPC 함수 등록
func (m *MemoryStore) RegisterRPC(name string, fn RPCFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpcs[name] = fn
}

func (m *MemoryStore) Find(ctx context.Context, table string, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	matched := m.match(table, q.Filters)
	m.mu.Unlock()

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return decodeRows(matched, out)
}

func (m *MemoryStore) Insert(ctx context.Context, table string, rows interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized, err := normalizeRows(rows)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if failErr := m.FailInsert[table]; failErr != nil {
		m.mu.Unlock()
		return failErr
	}
	for _, row := range normalized {
		if id, _ := row["id"].(string); id == "" {
			row["id"] = uuid.New().String()
		}
		m.tables[table] = append(m.tables[table], row)
	}
	inserted := cloneRows(normalized)
	m.mu.Unlock()

	if out == nil {
		return nil
	}
	return decodeRows(inserted, out)
}

func (m *MemoryStore) Update(ctx context.Context, table string, values map[string]interface{}, q Query, out interface{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, errUnfiltered
	}

	patch, err := normalizeRow(values)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if failErr := m.FailUpdate[table]; failErr != nil {
		m.mu.Unlock()
		return 0, failErr
	}
	var updated []map[string]interface{}
	for _, row := range m.tables[table] {
		if !matchesAll(row, q.Filters) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		updated = append(updated, row)
	}
	result := cloneRows(updated)
	m.mu.Unlock()

	if out != nil {
		if err := decodeRows(result, out); err != nil {
			return 0, err
		}
	}
	return len(result), nil
}

func (m *MemoryStore) Delete(ctx context.Context, table string, q Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(q.Filters) == 0 {
		return errUnfiltered
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if failErr := m.FailDelete[table]; failErr != nil {
		return failErr
	}

	kept := m.tables[table][:0]
	for _, row := range m.tables[table] {
		if !matchesAll(row, q.Filters) {
			kept = append(kept, row)
		}
	}
	m.tables[table] = kept
	return nil
}

// Increment - 조건에 맞는 행의 숫자 컬럼을 한 번의 잠금 안에서 delta만큼 올린다
// 값이 없거나 숫자가 아니면 0에서 시작한다.
func (m *MemoryStore) Increment(ctx context.Context, table string, q Query, column string, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, errUnfiltered
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if failErr := m.FailUpdate[table]; failErr != nil {
		return 0, failErr
	}

	affected := 0
	for _, row := range m.tables[table] {
		if !matchesAll(row, q.Filters) {
			continue
		}
		current, _ := toFloat(row[column])
		row[column] = current + float64(delta)
		affected++
	}
	return affected, nil
}

func (m *MemoryStore) Count(ctx context.Context, table string, q Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.match(table, q.Filters))), nil
}

func (m *MemoryStore) RPC(ctx context.Context, fn string, params map[string]interface{}, out interface{}) error {
	m.mu.Lock()
	rpc, ok := m.rpcs[fn]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("rpc %s not found", fn)
	}

	result, err := rpc(ctx, m, params)
	if err != nil {
		return err
	}
	if out == nil || result == nil {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Rows - 테이블 전체 스냅샷 (테스트 검증용)
func (m *MemoryStore) Rows(table string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.tables[table])
}

func (m *MemoryStore) match(table string, filters []Filter) []map[string]interface{} {
	var matched []map[string]interface{}
	for _, row := range m.tables[table] {
		if matchesAll(row, filters) {
			matched = append(matched, row)
		}
	}
	return cloneRows(matched)
}

func matchesAll(row map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		if !matches(row, f) {
			return false
		}
	}
	return true
}

func matches(row map[string]interface{}, f Filter) bool {
	value, present := row[f.Column]

	switch f.Operator {
	case OpIsNull:
		return !present || value == nil
	case OpIn:
		values, _ := f.Value.([]string)
		for _, candidate := range values {
			if present && formatValue(value) == candidate {
				return true
			}
		}
		return false
	}

	if !present || value == nil {
		return false
	}

	target := normalizeValue(f.Value)
	c := compareValues(value, target)
	switch f.Operator {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// compareValues - 숫자는 숫자로, 나머지는 문자열로 비교
func compareValues(a, b interface{}) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}

	as, bs := formatValue(a), formatValue(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func normalizeValue(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func normalizeRow(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	row := map[string]interface{}{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return row, nil
}

func normalizeRows(v interface{}) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}

	row := map[string]interface{}{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("rows must be an object or a list of objects: %w", err)
	}
	return []map[string]interface{}{row}, nil
}

func decodeRows(rows []map[string]interface{}, out interface{}) error {
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func cloneRows(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		copied := make(map[string]interface{}, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out = append(out, copied)
	}
	return out
}
