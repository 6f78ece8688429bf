// Package condition evaluates ROUTER route conditions against a JSON
// document. The grammar is deliberately small: a bare "true"/"false"
// literal, or "<path> <op> <literal>" with one comparison operator.
// Anything that does not parse evaluates to false, so a malformed
// condition can never open a route.
package condition

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Operators are probed in this order; the first one found as a substring
// splits the expression. Two-character operators come first so "a >= b"
// is not read as "a > (= b)".
var operators = []string{">=", "<=", "!=", "==", ">", "<"}

// Evaluate reports whether cond holds against the JSON document doc.
func Evaluate(cond, doc string) bool {
	cond = strings.TrimSpace(cond)

	path, op, lit, ok := split(cond)
	if !ok {
		return cond == "true"
	}

	val := lookup(doc, path)
	switch op {
	case "==":
		return equals(val, lit)
	case "!=":
		return !equals(val, lit)
	case ">":
		return greater(val, lit)
	case "<":
		return less(val, lit)
	case ">=":
		return !less(val, lit)
	case "<=":
		return !greater(val, lit)
	}
	return false
}

func split(cond string) (path, op, lit string, ok bool) {
	for _, candidate := range operators {
		if pos := strings.Index(cond, candidate); pos >= 0 {
			path = strings.TrimSpace(cond[:pos])
			lit = strings.Trim(strings.TrimSpace(cond[pos+len(candidate):]), `"`)
			return path, candidate, lit, true
		}
	}
	return "", "", "", false
}

// lookup descends dotted keys through objects only; a missing key, or a
// step through a non-object, yields null. A leading "$." is stripped.
func lookup(doc, path string) gjson.Result {
	for strings.HasPrefix(path, "$.") {
		path = path[2:]
	}

	cur := gjson.Parse(doc)
	for _, part := range strings.Split(path, ".") {
		if !cur.IsObject() {
			return gjson.Result{}
		}
		cur = cur.Map()[part]
	}
	return cur
}

// equals compares type-aware: booleans against their text form, numbers
// by minimal decimal representation, strings directly, null against
// "null", and anything else by raw JSON text.
func equals(val gjson.Result, lit string) bool {
	switch val.Type {
	case gjson.True:
		return lit == "true"
	case gjson.False:
		return lit == "false"
	case gjson.Number:
		return strconv.FormatFloat(val.Num, 'f', -1, 64) == lit
	case gjson.String:
		return val.Str == lit
	case gjson.Null:
		return lit == "null"
	default:
		return val.Raw == lit
	}
}

// Ordered comparisons coerce both sides to float64; non-numeric values
// count as zero. The negated forms give >= and <=.

func greater(val gjson.Result, lit string) bool {
	return numeric(val) > numericLit(lit)
}

func less(val gjson.Result, lit string) bool {
	return numeric(val) < numericLit(lit)
}

func numeric(val gjson.Result) float64 {
	if val.Type == gjson.Number {
		return val.Num
	}
	return 0
}

func numericLit(lit string) float64 {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0
	}
	return f
}
