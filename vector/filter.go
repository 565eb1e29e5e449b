// Copyright 2025 Gurubase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"fmt"
	"strings"
)

// Op is a filter comparison operator.
type Op int

const (
	// OpEq matches records whose field equals the condition value.
	OpEq Op = iota
	// OpIn matches records whose field is one of the condition values.
	OpIn
	// OpNotIn matches records whose field is none of the condition values.
	OpNotIn
)

// Condition is a single predicate over a stored field. Field names may be
// dotted to address nested metadata (e.g. "metadata.type").
type Condition struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is a conjunction of conditions. All conditions must hold.
type Filter struct {
	Conditions []Condition
}

// NewFilter builds a filter from the given conditions.
func NewFilter(conds ...Condition) *Filter {
	return &Filter{Conditions: conds}
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// In builds a set-membership condition.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// NotIn builds a set-exclusion condition.
func NotIn(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpNotIn, Values: values}
}

// Expr compiles the filter to a Milvus boolean expression.
func (f *Filter) Expr() string {
	if f == nil || len(f.Conditions) == 0 {
		return ""
	}

	parts := make([]string, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		field := milvusField(c.Field)
		switch c.Op {
		case OpEq:
			parts = append(parts, fmt.Sprintf("%s == %s", field, milvusValue(c.Value)))
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s in %s", field, milvusList(c.Values)))
		case OpNotIn:
			parts = append(parts, fmt.Sprintf("%s not in %s", field, milvusList(c.Values)))
		}
	}

	return strings.Join(parts, " and ")
}

// milvusField converts a dotted field path to Milvus JSON-path syntax:
// "metadata.type" becomes `metadata["type"]`.
func milvusField(field string) string {
	parts := strings.Split(field, ".")
	if len(parts) == 1 {
		return field
	}

	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		fmt.Fprintf(&sb, "[%q]", p)
	}
	return sb.String()
}

func milvusValue(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case float32, float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func milvusList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = milvusValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
