package vm

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts Lua values into plain Go values (bool/int64/float64/
// string/[]interface{}/map[string]interface{}), used wherever a materialized
// VM value needs to cross into a JSON response body — watch results and
// composite evaluate results in particular.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value, breaking circular table
// references by returning nil for an already-visited table.
func (b *Bridge) ToGoValue(lv lua.LValue) interface{} {
	return b.toGoValueWithVisited(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGoValueWithVisited(lv lua.LValue, visited map[*lua.LTable]bool) interface{} {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGoWithVisited(v, visited)
	case *lua.LNilType:
		return nil
	case *lua.LFunction:
		return nil
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGoWithVisited converts a Lua table to a Go slice (if it is a
// contiguous 1-based array) or a Go map otherwise.
func (b *Bridge) tableToGoWithVisited(t *lua.LTable, visited map[*lua.LTable]bool) interface{} {
	isArray := true
	maxN := 0
	t.ForEach(func(k, _ lua.LValue) {
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 {
		count := 0
		t.ForEach(func(_, _ lua.LValue) { count++ })
		if count != maxN {
			isArray = false
		}
	}

	if isArray && maxN > 0 {
		arr := make([]interface{}, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoValueWithVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]interface{})
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGoValueWithVisited(v, visited)
	})
	return m
}
