package dbgateway

import (
	"context"
	"fmt"
	"reflect"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// OperationKind is the builder operation being accumulated.
type OperationKind string

const (
	OpSelect OperationKind = "select"
	OpInsert OperationKind = "insert"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
	OpUpsert OperationKind = "upsert"
)

// FilterKind tags one accumulated filter. Filters compile in append order;
// applying the same kind to the same column twice narrows conjunctively.
type FilterKind string

const (
	FilterEq       FilterKind = "eq"
	FilterNeq      FilterKind = "neq"
	FilterGt       FilterKind = "gt"
	FilterGte      FilterKind = "gte"
	FilterLt       FilterKind = "lt"
	FilterLte      FilterKind = "lte"
	FilterLike     FilterKind = "like"
	FilterILike    FilterKind = "ilike"
	FilterIs       FilterKind = "is"
	FilterIn       FilterKind = "in"
	FilterContains FilterKind = "cs"
	FilterBetween  FilterKind = "between"
)

// Filter is one tagged filter entry.
type Filter struct {
	Kind   FilterKind
	Column string
	Value  any
}

// ModifierKind tags one accumulated modifier. Single-valued modifiers are
// last-write-wins at compile time; order accumulates.
type ModifierKind string

const (
	ModifierOrder  ModifierKind = "order"
	ModifierLimit  ModifierKind = "limit"
	ModifierOffset ModifierKind = "offset"
	ModifierRange  ModifierKind = "range"
	ModifierSingle ModifierKind = "single"
	ModifierCount  ModifierKind = "count"
)

// Modifier is one tagged modifier entry.
type Modifier struct {
	Kind ModifierKind
	Args []any
}

// QueryDescriptor is the accumulated, not-yet-executed representation of a
// builder chain. It is built incrementally and consumed exactly once.
type QueryDescriptor struct {
	Schema    string
	Table     string
	Target    string
	Operation OperationKind
	Columns   []string
	Filters   []Filter
	Modifiers []Modifier
	Payload   any
	Conflict  []string
	Admin     bool
}

// SchemaScope is the builder entry point for one logical schema.
type SchemaScope struct {
	client *Client
	schema string
}

// Schema starts a builder chain against a logical schema.
func (c *Client) Schema(name string) *SchemaScope {
	return &SchemaScope{client: c, schema: name}
}

// Table selects a table within the schema and returns the operation selector.
func (s *SchemaScope) Table(name string) *TableScope {
	t := &TableScope{client: s.client}

	flat, schema, err := ResolveIdentifier(s.schema + "." + name)
	if err != nil {
		t.err = err
		return t
	}

	t.desc = QueryDescriptor{
		Schema: schema,
		Table:  name,
		Target: flat,
	}

	return t
}

// Table starts a builder chain from a dotted or already-flat identifier.
func (c *Client) Table(identifier string) *TableScope {
	t := &TableScope{client: c}

	flat, schema, err := ResolveIdentifier(identifier)
	if err != nil {
		t.err = err
		return t
	}

	t.desc = QueryDescriptor{
		Schema: schema,
		Table:  identifier,
		Target: flat,
	}

	return t
}

// TableScope selects the operation kind for a table reference.
type TableScope struct {
	client *Client
	desc   QueryDescriptor
	err    error
}

// Select starts a read. With no columns, all columns are returned.
func (t *TableScope) Select(columns ...string) *SelectBuilder {
	t.desc.Operation = OpSelect
	t.desc.Columns = columns

	return &SelectBuilder{client: t.client, desc: t.desc, err: t.err}
}

// Insert starts an insert of one record or a list of records.
func (t *TableScope) Insert(payload any) *InsertBuilder {
	t.desc.Operation = OpInsert
	t.desc.Payload = payload

	return &InsertBuilder{client: t.client, desc: t.desc, err: t.err}
}

// Update starts an update applying the given column values to matching rows.
func (t *TableScope) Update(record map[string]any) *UpdateBuilder {
	t.desc.Operation = OpUpdate
	t.desc.Payload = record

	return &UpdateBuilder{client: t.client, desc: t.desc, err: t.err}
}

// Delete starts a delete of matching rows.
func (t *TableScope) Delete() *DeleteBuilder {
	t.desc.Operation = OpDelete

	return &DeleteBuilder{client: t.client, desc: t.desc, err: t.err}
}

// Upsert starts an insert-or-update of one record or a list of records.
func (t *TableScope) Upsert(payload any) *UpsertBuilder {
	t.desc.Operation = OpUpsert
	t.desc.Payload = payload

	return &UpsertBuilder{client: t.client, desc: t.desc, err: t.err}
}

// execute compiles a descriptor and runs it through the execution engine.
// Builders are single-use: the executed latch rejects reuse.
func executeDescriptor(ctx context.Context, client *Client, desc *QueryDescriptor, berr error, executed *bool) (*QueryResult, error) {
	if *executed {
		return nil, ErrBuilderConsumed
	}

	*executed = true

	if berr != nil {
		return nil, berr
	}

	req, err := compile(desc)
	if err != nil {
		return nil, err
	}

	class := classifyDescriptor(desc)

	return client.Execute(ctx, class, desc.Schema, desc.Admin, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return client.transport.Do(ctx, handle, req)
	})
}

// classifyDescriptor derives the operation class for timeout and breaker
// scoping. Anything against the vector schema is vector-class; multi-record
// mutations are batch-class; unbounded update/delete sweeps are batch-class;
// counted or heavily filtered reads are complex; the rest is simple.
func classifyDescriptor(d *QueryDescriptor) OperationClass {
	if d.Schema == constant.SchemaVector {
		return OperationVector
	}

	switch d.Operation {
	case OpInsert, OpUpsert:
		if payloadSize(d.Payload) > 1 {
			return OperationBatch
		}

		return OperationSimple
	case OpUpdate, OpDelete:
		for _, f := range d.Filters {
			if f.Kind == FilterEq {
				return OperationSimple
			}
		}

		return OperationBatch
	default:
		if hasModifier(d.Modifiers, ModifierCount) || len(d.Filters)+len(d.Modifiers) > 3 {
			return OperationComplex
		}

		return OperationSimple
	}
}

func payloadSize(payload any) int {
	if payload == nil {
		return 0
	}

	v := reflect.ValueOf(payload)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return v.Len()
	}

	return 1
}

func hasModifier(mods []Modifier, kind ModifierKind) bool {
	for _, m := range mods {
		if m.Kind == kind {
			return true
		}
	}

	return false
}

// SelectBuilder accumulates filters and modifiers for a read.
type SelectBuilder struct {
	client   *Client
	desc     QueryDescriptor
	err      error
	executed bool
}

// Eq filters rows where column equals value.
func (b *SelectBuilder) Eq(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterEq, Column: column, Value: value})
	return b
}

// Neq filters rows where column does not equal value.
func (b *SelectBuilder) Neq(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterNeq, Column: column, Value: value})
	return b
}

// Gt filters rows where column is greater than value.
func (b *SelectBuilder) Gt(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGt, Column: column, Value: value})
	return b
}

// Gte filters rows where column is greater than or equal to value.
func (b *SelectBuilder) Gte(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGte, Column: column, Value: value})
	return b
}

// Lt filters rows where column is less than value.
func (b *SelectBuilder) Lt(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLt, Column: column, Value: value})
	return b
}

// Lte filters rows where column is less than or equal to value.
func (b *SelectBuilder) Lte(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLte, Column: column, Value: value})
	return b
}

// Like filters rows where column matches a case-sensitive pattern.
func (b *SelectBuilder) Like(column, pattern string) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLike, Column: column, Value: pattern})
	return b
}

// ILike filters rows where column matches a case-insensitive pattern.
func (b *SelectBuilder) ILike(column, pattern string) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterILike, Column: column, Value: pattern})
	return b
}

// Is filters on identity comparisons; use a nil value for a null test.
func (b *SelectBuilder) Is(column string, value any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIs, Column: column, Value: value})
	return b
}

// In filters rows where column is one of the given values.
func (b *SelectBuilder) In(column string, values ...any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIn, Column: column, Value: values})
	return b
}

// Contains filters rows whose array/json column contains every given value.
func (b *SelectBuilder) Contains(column string, values ...any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterContains, Column: column, Value: values})
	return b
}

// Between filters rows where column lies in [from, to], inclusive.
func (b *SelectBuilder) Between(column string, from, to any) *SelectBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterBetween, Column: column, Value: [2]any{from, to}})
	return b
}

// Order appends a sort key. Multiple calls sort by multiple columns.
func (b *SelectBuilder) Order(column string, ascending bool) *SelectBuilder {
	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierOrder, Args: []any{column, ascending}})
	return b
}

// Limit caps the number of returned rows. Last call wins.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	if n < 0 {
		b.err = fmt.Errorf("limit must be non-negative, got %d", n)
		return b
	}

	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierLimit, Args: []any{n}})

	return b
}

// Offset skips the first n rows. Last call wins.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	if n < 0 {
		b.err = fmt.Errorf("offset must be non-negative, got %d", n)
		return b
	}

	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierOffset, Args: []any{n}})

	return b
}

// Range selects the window of rows [from, to], inclusive. Last call wins.
func (b *SelectBuilder) Range(from, to int) *SelectBuilder {
	if from < 0 || to < from {
		b.err = fmt.Errorf("invalid range window [%d, %d]", from, to)
		return b
	}

	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierRange, Args: []any{from, to}})

	return b
}

// Single expects exactly one row and returns it as a single object.
func (b *SelectBuilder) Single() *SelectBuilder {
	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierSingle})
	return b
}

// WithCount asks the gateway for the exact total row count alongside the data.
func (b *SelectBuilder) WithCount() *SelectBuilder {
	b.desc.Modifiers = append(b.desc.Modifiers, Modifier{Kind: ModifierCount})
	return b
}

// Admin routes the call through the elevated identity.
func (b *SelectBuilder) Admin() *SelectBuilder {
	b.desc.Admin = true
	return b
}

// Execute compiles the accumulated descriptor into one gateway call.
func (b *SelectBuilder) Execute(ctx context.Context) (*QueryResult, error) {
	return executeDescriptor(ctx, b.client, &b.desc, b.err, &b.executed)
}

// InsertBuilder accumulates a payload for an insert.
type InsertBuilder struct {
	client   *Client
	desc     QueryDescriptor
	err      error
	executed bool
}

// Returning requests that the inserted rows be returned.
// Inserts always return their representation; the method exists for symmetry
// with callers that want to be explicit.
func (b *InsertBuilder) Returning() *InsertBuilder {
	return b
}

// Admin routes the call through the elevated identity.
func (b *InsertBuilder) Admin() *InsertBuilder {
	b.desc.Admin = true
	return b
}

// Execute compiles the accumulated descriptor into one gateway call.
func (b *InsertBuilder) Execute(ctx context.Context) (*QueryResult, error) {
	return executeDescriptor(ctx, b.client, &b.desc, b.err, &b.executed)
}

// UpdateBuilder accumulates filters scoping an update.
type UpdateBuilder struct {
	client   *Client
	desc     QueryDescriptor
	err      error
	executed bool
}

// Eq scopes the update to rows where column equals value.
func (b *UpdateBuilder) Eq(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterEq, Column: column, Value: value})
	return b
}

// Neq scopes the update to rows where column does not equal value.
func (b *UpdateBuilder) Neq(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterNeq, Column: column, Value: value})
	return b
}

// Gt scopes the update to rows where column is greater than value.
func (b *UpdateBuilder) Gt(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGt, Column: column, Value: value})
	return b
}

// Gte scopes the update to rows where column is at least value.
func (b *UpdateBuilder) Gte(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGte, Column: column, Value: value})
	return b
}

// Lt scopes the update to rows where column is less than value.
func (b *UpdateBuilder) Lt(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLt, Column: column, Value: value})
	return b
}

// Lte scopes the update to rows where column is at most value.
func (b *UpdateBuilder) Lte(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLte, Column: column, Value: value})
	return b
}

// In scopes the update to rows where column is one of the given values.
func (b *UpdateBuilder) In(column string, values ...any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIn, Column: column, Value: values})
	return b
}

// Is scopes the update on identity comparisons; nil value for a null test.
func (b *UpdateBuilder) Is(column string, value any) *UpdateBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIs, Column: column, Value: value})
	return b
}

// Admin routes the call through the elevated identity.
func (b *UpdateBuilder) Admin() *UpdateBuilder {
	b.desc.Admin = true
	return b
}

// Execute compiles the accumulated descriptor into one gateway call.
func (b *UpdateBuilder) Execute(ctx context.Context) (*QueryResult, error) {
	return executeDescriptor(ctx, b.client, &b.desc, b.err, &b.executed)
}

// DeleteBuilder accumulates filters scoping a delete.
type DeleteBuilder struct {
	client   *Client
	desc     QueryDescriptor
	err      error
	executed bool
}

// Eq scopes the delete to rows where column equals value.
func (b *DeleteBuilder) Eq(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterEq, Column: column, Value: value})
	return b
}

// Neq scopes the delete to rows where column does not equal value.
func (b *DeleteBuilder) Neq(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterNeq, Column: column, Value: value})
	return b
}

// Gt scopes the delete to rows where column is greater than value.
func (b *DeleteBuilder) Gt(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGt, Column: column, Value: value})
	return b
}

// Gte scopes the delete to rows where column is at least value.
func (b *DeleteBuilder) Gte(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterGte, Column: column, Value: value})
	return b
}

// Lt scopes the delete to rows where column is less than value.
func (b *DeleteBuilder) Lt(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLt, Column: column, Value: value})
	return b
}

// Lte scopes the delete to rows where column is at most value.
func (b *DeleteBuilder) Lte(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterLte, Column: column, Value: value})
	return b
}

// In scopes the delete to rows where column is one of the given values.
func (b *DeleteBuilder) In(column string, values ...any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIn, Column: column, Value: values})
	return b
}

// Is scopes the delete on identity comparisons; nil value for a null test.
func (b *DeleteBuilder) Is(column string, value any) *DeleteBuilder {
	b.desc.Filters = append(b.desc.Filters, Filter{Kind: FilterIs, Column: column, Value: value})
	return b
}

// Admin routes the call through the elevated identity.
func (b *DeleteBuilder) Admin() *DeleteBuilder {
	b.desc.Admin = true
	return b
}

// Execute compiles the accumulated descriptor into one gateway call.
func (b *DeleteBuilder) Execute(ctx context.Context) (*QueryResult, error) {
	return executeDescriptor(ctx, b.client, &b.desc, b.err, &b.executed)
}

// UpsertBuilder accumulates a payload and conflict target for an upsert.
type UpsertBuilder struct {
	client   *Client
	desc     QueryDescriptor
	err      error
	executed bool
}

// OnConflict sets the columns the gateway uses to detect conflicts.
func (b *UpsertBuilder) OnConflict(columns ...string) *UpsertBuilder {
	b.desc.Conflict = columns
	return b
}

// Admin routes the call through the elevated identity.
func (b *UpsertBuilder) Admin() *UpsertBuilder {
	b.desc.Admin = true
	return b
}

// Execute compiles the accumulated descriptor into one gateway call.
func (b *UpsertBuilder) Execute(ctx context.Context) (*QueryResult, error) {
	return executeDescriptor(ctx, b.client, &b.desc, b.err, &b.executed)
}
