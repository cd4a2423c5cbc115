package dbgateway

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// compile turns an accumulated QueryDescriptor into one gateway request.
// Filters compile in the order they were appended; single-valued modifiers
// resolve last-write-wins.
func compile(d *QueryDescriptor) (*Request, error) {
	req := &Request{
		Target:  d.Target,
		Headers: map[string]string{},
	}

	switch d.Operation {
	case OpSelect:
		req.Method = http.MethodGet
		compileColumns(req, d)
	case OpInsert:
		req.Method = http.MethodPost
		req.Payload = d.Payload
		req.Headers[constant.HeaderPrefer] = "return=representation"
	case OpUpsert:
		req.Method = http.MethodPost
		req.Payload = d.Payload
		req.Headers[constant.HeaderPrefer] = "return=representation,resolution=merge-duplicates"

		if len(d.Conflict) > 0 {
			req.Params = append(req.Params, Param{Key: "on_conflict", Value: strings.Join(d.Conflict, ",")})
		}
	case OpUpdate:
		req.Method = http.MethodPatch
		req.Payload = d.Payload
		req.Headers[constant.HeaderPrefer] = "return=representation"
	case OpDelete:
		req.Method = http.MethodDelete
		req.Headers[constant.HeaderPrefer] = "return=representation"
	default:
		return nil, fmt.Errorf("unsupported operation kind %q", d.Operation)
	}

	for _, f := range d.Filters {
		params, err := compileFilter(f)
		if err != nil {
			return nil, err
		}

		req.Params = append(req.Params, params...)
	}

	if err := compileModifiers(req, d.Modifiers); err != nil {
		return nil, err
	}

	return req, nil
}

func compileColumns(req *Request, d *QueryDescriptor) {
	columns := "*"
	if len(d.Columns) > 0 {
		columns = strings.Join(d.Columns, ",")
	}

	req.Params = append(req.Params, Param{Key: "select", Value: columns})
}

// compileFilter renders one filter entry. A between filter expands to a
// conjunctive gte/lte pair; everything else is a single parameter.
func compileFilter(f Filter) ([]Param, error) {
	switch f.Kind {
	case FilterBetween:
		bounds, ok := f.Value.([2]any)
		if !ok {
			return nil, fmt.Errorf("between filter on %q requires two bounds", f.Column)
		}

		return []Param{
			{Key: f.Column, Value: "gte." + formatValue(bounds[0])},
			{Key: f.Column, Value: "lte." + formatValue(bounds[1])},
		}, nil
	case FilterIn:
		values, ok := f.Value.([]any)
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("in filter on %q requires at least one value", f.Column)
		}

		return []Param{{Key: f.Column, Value: "in.(" + formatList(values) + ")"}}, nil
	case FilterContains:
		values, ok := f.Value.([]any)
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("contains filter on %q requires at least one value", f.Column)
		}

		return []Param{{Key: f.Column, Value: "cs.{" + formatList(values) + "}"}}, nil
	case FilterIs:
		return []Param{{Key: f.Column, Value: "is." + formatValue(f.Value)}}, nil
	default:
		return []Param{{Key: f.Column, Value: string(f.Kind) + "." + formatValue(f.Value)}}, nil
	}
}

// compileModifiers resolves the modifier list: order keys accumulate, the
// single-valued ones (limit, offset, range, single, count) are last-write-wins.
func compileModifiers(req *Request, mods []Modifier) error {
	var (
		orderKeys  []string
		limit      *int
		offset     *int
		window     *[2]int
		single     bool
		exactCount bool
	)

	for _, m := range mods {
		switch m.Kind {
		case ModifierOrder:
			column, _ := m.Args[0].(string)

			direction := "desc"
			if asc, _ := m.Args[1].(bool); asc {
				direction = "asc"
			}

			orderKeys = append(orderKeys, column+"."+direction)
		case ModifierLimit:
			n, _ := m.Args[0].(int)
			limit = &n
		case ModifierOffset:
			n, _ := m.Args[0].(int)
			offset = &n
		case ModifierRange:
			from, _ := m.Args[0].(int)
			to, _ := m.Args[1].(int)
			window = &[2]int{from, to}
		case ModifierSingle:
			single = true
		case ModifierCount:
			exactCount = true
		default:
			return fmt.Errorf("unsupported modifier kind %q", m.Kind)
		}
	}

	if len(orderKeys) > 0 {
		req.Params = append(req.Params, Param{Key: "order", Value: strings.Join(orderKeys, ",")})
	}

	// An explicit range window translates to limit/offset and overrides both.
	if window != nil {
		w := *window
		from, to := w[0], w[1]
		span := to - from + 1
		limit = &span
		offset = &from
	}

	if limit != nil {
		req.Params = append(req.Params, Param{Key: "limit", Value: strconv.Itoa(*limit)})
	}

	if offset != nil {
		req.Params = append(req.Params, Param{Key: "offset", Value: strconv.Itoa(*offset)})
	}

	if single {
		req.Headers["Accept"] = "application/vnd.pgrst.object+json"
	}

	if exactCount {
		prefer := req.Headers[constant.HeaderPrefer]
		if prefer != "" {
			prefer += ","
		}

		req.Headers[constant.HeaderPrefer] = prefer + "count=exact"
	}

	return nil
}

// formatValue renders a filter operand in the gateway's textual encoding.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatList renders in-list and containment operands, quoting entries that
// carry reserved characters.
func formatList(values []any) string {
	parts := make([]string, 0, len(values))

	for _, v := range values {
		s := formatValue(v)
		if strings.ContainsAny(s, ",(){}\"") {
			s = strconv.Quote(s)
		}

		parts = append(parts, s)
	}

	return strings.Join(parts, ",")
}
