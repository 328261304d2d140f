// Package card renders Adaptive Card templates and wraps the results in the
// response envelopes Teams expects from a bot.
package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMissingField is returned when a template references a field the data
// does not carry.
var ErrMissingField = errors.New("missing template field")

const (
	dataKey   = "$data"
	rootPath  = "$root"
	indexPath = "$index"
)

// scope is the data a template node is evaluated against. Inside a $data
// repetition cur is the element and root stays the outer record.
type scope struct {
	root  []byte
	cur   []byte
	index int
}

// Render fills template with data. data may be any value encoding/json can
// marshal, or raw JSON bytes. The output is deterministic for equal inputs.
func Render(template Template, data any) ([]byte, error) {
	raw, err := dataBytes(data)
	if err != nil {
		return nil, err
	}
	sc := scope{root: raw, cur: raw, index: -1}
	out, err := expand(template.body, sc)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", template.ID, err)
	}
	return json.Marshal(out)
}

func dataBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("card data is not valid json")
		}
		return v, nil
	case json.RawMessage:
		return dataBytes([]byte(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal card data: %w", err)
		}
		return b, nil
	}
}

func expand(node any, sc scope) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			if key == dataKey {
				continue
			}
			val, err := expand(child, sc)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, child := range v {
			obj, ok := child.(map[string]any)
			if !ok {
				val, err := expand(child, sc)
				if err != nil {
					return nil, err
				}
				out = append(out, val)
				continue
			}
			expr, repeated := obj[dataKey].(string)
			if !repeated {
				val, err := expand(obj, sc)
				if err != nil {
					return nil, err
				}
				out = append(out, val)
				continue
			}
			items, err := repeat(obj, expr, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	case string:
		return substitute(v, sc)
	default:
		return v, nil
	}
}

// repeat expands obj once per element of the array named by expr. A single
// object is treated as a one-element array.
func repeat(obj map[string]any, expr string, sc scope) ([]any, error) {
	path, whole := wholeExpr(expr)
	if !whole {
		return nil, fmt.Errorf("%s must be a single expression, got %q", dataKey, expr)
	}
	res, err := lookup(path, sc)
	if err != nil {
		return nil, err
	}
	var elems []gjson.Result
	switch {
	case res.IsArray():
		elems = res.Array()
	case res.IsObject():
		elems = []gjson.Result{res}
	case res.Type == gjson.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s %q is not an array", dataKey, path)
	}
	out := make([]any, 0, len(elems))
	for i, elem := range elems {
		child := scope{root: sc.root, cur: []byte(elem.Raw), index: i}
		val, err := expand(obj, child)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func substitute(s string, sc scope) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if path, whole := wholeExpr(s); whole {
		res, err := lookup(path, sc)
		if err != nil {
			return nil, err
		}
		if res.Type == gjson.Null {
			return nil, nil
		}
		return json.RawMessage(res.Raw), nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : start+end])
		res, err := lookup(path, sc)
		if err != nil {
			return nil, err
		}
		b.WriteString(textOf(res))
		rest = rest[start+end+1:]
	}
	return b.String(), nil
}

func wholeExpr(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	inner := s[2 : len(s)-1]
	if strings.Contains(inner, "${") || strings.Contains(inner, "}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

func lookup(path string, sc scope) (gjson.Result, error) {
	if path == indexPath {
		if sc.index < 0 {
			return gjson.Result{}, fmt.Errorf("%w: %s outside %s", ErrMissingField, indexPath, dataKey)
		}
		return gjson.Parse(strconv.Itoa(sc.index)), nil
	}
	src := sc.cur
	switch path {
	case rootPath:
		return gjson.ParseBytes(sc.root), nil
	case dataKey:
		return gjson.ParseBytes(sc.cur), nil
	}
	if strings.HasPrefix(path, rootPath+".") {
		src = sc.root
		path = strings.TrimPrefix(path, rootPath+".")
	}
	res := gjson.GetBytes(src, path)
	if !res.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrMissingField, path)
	}
	return res, nil
}

func textOf(res gjson.Result) string {
	switch res.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return res.Str
	default:
		return res.Raw
	}
}
