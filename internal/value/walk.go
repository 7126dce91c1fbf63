package value

// Node is one position in a record: its path and the value found there.
type Node struct {
	Path  string
	Value interface{}
}

// Walk visits every node below the root in deterministic order. Map keys
// join with dots and only index 0 of a list is descended into:
//
//	{"items": [{"sku": "A1"}]}  ->  items, items[0], items[0].sku
//
// Containers are visited before their children.
func Walk(root interface{}, visit func(path string, v interface{})) {
	walk("", root, visit, true)
}

func walk(path string, v interface{}, visit func(string, interface{}), root bool) {
	if !root {
		visit(path, v)
	}
	switch val := v.(type) {
	case map[string]interface{}:
		for _, k := range SortedKeys(val) {
			walk(join(path, k), val[k], visit, false)
		}
	case []interface{}:
		if len(val) > 0 {
			walk(path+"[0]", val[0], visit, false)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Leaves returns the primitive nodes of root in Walk order.
func Leaves(root interface{}) []Node {
	var out []Node
	Walk(root, func(path string, v interface{}) {
		if IsPrimitive(v) {
			out = append(out, Node{Path: path, Value: v})
		}
	})
	return out
}

// Lookup returns the value at path and whether the path exists.
func Lookup(root interface{}, path string) (interface{}, bool) {
	var (
		found interface{}
		ok    bool
	)
	Walk(root, func(p string, v interface{}) {
		if !ok && p == path {
			found, ok = v, true
		}
	})
	return found, ok
}
