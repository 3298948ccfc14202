package database

import (
	"fmt"
	"strings"
)

type FilterOp string

const (
	OpEq      FilterOp = "eq"
	OpNe      FilterOp = "ne"
	OpGt      FilterOp = "gt"
	OpGte     FilterOp = "gte"
	OpLt      FilterOp = "lt"
	OpLte     FilterOp = "lte"
	OpLike    FilterOp = "like"
	OpIn      FilterOp = "in"
	OpNotIn   FilterOp = "not_in"
	OpIsNull  FilterOp = "is_null"
	OpNotNull FilterOp = "not_null"
)

type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Condition is a raw SQL predicate with its placeholder arguments, for
// predicates the filter operators cannot express.
type Condition struct {
	SQL  string
	Args []any
}

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

type Sort struct {
	Field string
	Order SortOrder
}

// Values converts a typed slice for use with OpIn and OpNotIn.
func Values[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// predicates is the WHERE clause shared by every builder.
type predicates struct {
	filters    []*Filter
	conditions []Condition
}

func (p *predicates) add(field string, op FilterOp, value any) {
	p.filters = append(p.filters, &Filter{Field: field, Op: op, Value: value})
}

func (p *predicates) raw(sql string, args ...any) {
	p.conditions = append(p.conditions, Condition{SQL: sql, Args: args})
}

func (p *predicates) empty() bool {
	return len(p.filters) == 0 && len(p.conditions) == 0
}

func (p *predicates) write(sb *strings.Builder) []any {
	if p.empty() {
		return nil
	}

	var parts []string
	var args []any
	for _, f := range p.filters {
		cond, fargs := buildFilter(f)
		parts = append(parts, cond)
		args = append(args, fargs...)
	}
	for _, c := range p.conditions {
		parts = append(parts, "("+c.SQL+")")
		args = append(args, c.Args...)
	}

	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(parts, " AND "))
	return args
}

func buildFilter(f *Filter) (string, []any) {
	switch f.Op {
	case OpEq:
		return fmt.Sprintf("%s = ?", f.Field), []any{f.Value}
	case OpNe:
		return fmt.Sprintf("%s != ?", f.Field), []any{f.Value}
	case OpGt:
		return fmt.Sprintf("%s > ?", f.Field), []any{f.Value}
	case OpGte:
		return fmt.Sprintf("%s >= ?", f.Field), []any{f.Value}
	case OpLt:
		return fmt.Sprintf("%s < ?", f.Field), []any{f.Value}
	case OpLte:
		return fmt.Sprintf("%s <= ?", f.Field), []any{f.Value}
	case OpLike:
		return fmt.Sprintf("%s LIKE ?", f.Field), []any{f.Value}
	case OpIn, OpNotIn:
		values, ok := f.Value.([]any)
		if !ok {
			values = []any{f.Value}
		}
		if len(values) == 0 {
			// An empty set matches nothing, its complement everything.
			if f.Op == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		keyword := "IN"
		if f.Op == OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f.Field, keyword, placeholders), values
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", f.Field), nil
	case OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", f.Field), nil
	default:
		return fmt.Sprintf("%s = ?", f.Field), []any{f.Value}
	}
}

type QueryBuilder struct {
	table   string
	selects []string
	where   predicates
	sorts   []*Sort
	limit   int
	offset  int
}

func NewQuery(table string) *QueryBuilder {
	return &QueryBuilder{
		table:   table,
		selects: []string{"*"},
	}
}

func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.selects = fields
	return q
}

func (q *QueryBuilder) Filter(field string, op FilterOp, value any) *QueryBuilder {
	q.where.add(field, op, value)
	return q
}

func (q *QueryBuilder) Where(field string, value any) *QueryBuilder {
	return q.Filter(field, OpEq, value)
}

func (q *QueryBuilder) WhereRaw(sql string, args ...any) *QueryBuilder {
	q.where.raw(sql, args...)
	return q
}

// Apply adds every predicate from a prepared filter set.
func (q *QueryBuilder) Apply(c Conditions) *QueryBuilder {
	c.applyTo(&q.where)
	return q
}

func (q *QueryBuilder) Sort(field string, order SortOrder) *QueryBuilder {
	q.sorts = append(q.sorts, &Sort{Field: field, Order: order})
	return q
}

func (q *QueryBuilder) OrderBy(field string) *QueryBuilder {
	return q.Sort(field, SortAsc)
}

func (q *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return q.Sort(field, SortDesc)
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

func (q *QueryBuilder) Build() (string, []any) {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)

	args := q.where.write(&sb)

	if len(q.sorts) > 0 {
		sb.WriteString(" ORDER BY ")
		sortClauses := make([]string, 0, len(q.sorts))
		for _, s := range q.sorts {
			sortClauses = append(sortClauses, fmt.Sprintf("%s %s", s.Field, s.Order))
		}
		sb.WriteString(strings.Join(sortClauses, ", "))
	}

	if q.limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.limit))
	}

	if q.offset > 0 {
		if q.limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.offset))
	}

	return sb.String(), args
}

func (q *QueryBuilder) BuildCount() (string, []any) {
	var sb strings.Builder

	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(q.table)
	args := q.where.write(&sb)

	return sb.String(), args
}

type InsertBuilder struct {
	table  string
	fields []string
	values []any
}

func NewInsert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (b *InsertBuilder) Set(field string, value any) *InsertBuilder {
	b.fields = append(b.fields, field)
	b.values = append(b.values, value)
	return b
}

func (b *InsertBuilder) Build() (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(b.fields)), ", ")

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table,
		strings.Join(b.fields, ", "),
		placeholders)

	return sql, b.values
}

type UpdateBuilder struct {
	table  string
	sets   []string
	values []any
	where  predicates
}

func NewUpdate(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (b *UpdateBuilder) Set(field string, value any) *UpdateBuilder {
	b.sets = append(b.sets, fmt.Sprintf("%s = ?", field))
	b.values = append(b.values, value)
	return b
}

func (b *UpdateBuilder) Filter(field string, op FilterOp, value any) *UpdateBuilder {
	b.where.add(field, op, value)
	return b
}

func (b *UpdateBuilder) Where(field string, value any) *UpdateBuilder {
	return b.Filter(field, OpEq, value)
}

func (b *UpdateBuilder) WhereRaw(sql string, args ...any) *UpdateBuilder {
	b.where.raw(sql, args...)
	return b
}

func (b *UpdateBuilder) Apply(c Conditions) *UpdateBuilder {
	c.applyTo(&b.where)
	return b
}

// HasSets reports whether any column is assigned.
func (b *UpdateBuilder) HasSets() bool {
	return len(b.sets) > 0
}

func (b *UpdateBuilder) Build() (string, []any) {
	var sb strings.Builder

	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(b.sets, ", "))

	args := make([]any, 0, len(b.values))
	args = append(args, b.values...)
	args = append(args, b.where.write(&sb)...)

	return sb.String(), args
}

type DeleteBuilder struct {
	table string
	where predicates
}

func NewDelete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (b *DeleteBuilder) Filter(field string, op FilterOp, value any) *DeleteBuilder {
	b.where.add(field, op, value)
	return b
}

func (b *DeleteBuilder) Where(field string, value any) *DeleteBuilder {
	return b.Filter(field, OpEq, value)
}

func (b *DeleteBuilder) WhereRaw(sql string, args ...any) *DeleteBuilder {
	b.where.raw(sql, args...)
	return b
}

func (b *DeleteBuilder) Apply(c Conditions) *DeleteBuilder {
	c.applyTo(&b.where)
	return b
}

func (b *DeleteBuilder) Build() (string, []any) {
	var sb strings.Builder

	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	args := b.where.write(&sb)

	return sb.String(), args
}

// Conditions is a reusable predicate set that can be applied to a select,
// update or delete, so one filter drives reads and bulk writes alike.
type Conditions struct {
	p predicates
}

func (c *Conditions) Filter(field string, op FilterOp, value any) *Conditions {
	c.p.add(field, op, value)
	return c
}

func (c *Conditions) Where(field string, value any) *Conditions {
	return c.Filter(field, OpEq, value)
}

func (c *Conditions) WhereRaw(sql string, args ...any) *Conditions {
	c.p.raw(sql, args...)
	return c
}

func (c Conditions) Empty() bool {
	return c.p.empty()
}

func (c Conditions) applyTo(p *predicates) {
	p.filters = append(p.filters, c.p.filters...)
	p.conditions = append(p.conditions, c.p.conditions...)
}
