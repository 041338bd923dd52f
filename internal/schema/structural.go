package schema

import (
	"fmt"
	"math"
	"strings"
)

// walker accumulates phase-1 violations while descending the parsed JSON tree.
type walker struct {
	errs []ValidationError
}

func (w *walker) add(path, format string, args ...interface{}) {
	w.errs = append(w.errs, errAt(path, format, args...))
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// validateStructure is phase 1: every required field present with the
// correct primitive or enumerated type. It never inspects cross-entity
// relationships; that is phase 2's job.
func validateStructure(doc map[string]interface{}) []ValidationError {
	w := &walker{}

	if meta, ok := w.requireObject(doc, "", "metadata"); ok {
		p := "metadata"
		w.requireString(meta, p, "name")
		w.requireString(meta, p, "description")
		w.requireEnum(meta, p, "difficulty", difficulties)
		w.optionalStringArray(meta, p, "tags")
		w.optionalStringArray(meta, p, "learning_objectives")
	}

	w.entityArray(doc, "networks", func(obj map[string]interface{}, p string) {
		w.requireString(obj, p, "id")
		w.requireString(obj, p, "name")
		w.requireEnum(obj, p, "type", networkTypes)
		w.requireString(obj, p, "subnet")
	})

	w.entityArray(doc, "hosts", func(obj map[string]interface{}, p string) {
		w.requireString(obj, p, "id")
		w.requireString(obj, p, "name")
		w.requireEnum(obj, p, "type", hostTypes)
		w.requireString(obj, p, "base_image")
		attachments, ok := w.requireArray(obj, p, "networks")
		if ok {
			for i, item := range attachments {
				ip := indexPath(joinPath(p, "networks"), i)
				attach, ok := asObject(item)
				if !ok {
					w.add(ip, "must be an object")
					continue
				}
				w.requireString(attach, ip, "network_id")
				w.optionalString(attach, ip, "ip_address")
			}
		}
		w.optionalStringArray(obj, p, "services")
		w.optionalStringArray(obj, p, "vulnerabilities")
		w.optionalStringArray(obj, p, "flags")
	})

	w.entityArray(doc, "services", func(obj map[string]interface{}, p string) {
		w.requireString(obj, p, "id")
		w.requireString(obj, p, "name")
		w.requireString(obj, p, "type")
		ports, ok := w.requireArray(obj, p, "ports")
		if ok {
			for i, item := range ports {
				pp := indexPath(joinPath(p, "ports"), i)
				port, ok := asObject(item)
				if !ok {
					w.add(pp, "must be an object")
					continue
				}
				w.requireInt(port, pp, "internal")
				w.optionalString(port, pp, "protocol")
			}
		}
	})

	w.entityArray(doc, "vulnerabilities", func(obj map[string]interface{}, p string) {
		w.requireString(obj, p, "id")
		w.requireString(obj, p, "name")
		w.requireEnum(obj, p, "type", vulnerabilityTypes)
		w.requireEnum(obj, p, "severity", severities)
		w.requireString(obj, p, "description")
		w.requireString(obj, p, "affected_service")
	})

	w.entityArray(doc, "flags", func(obj map[string]interface{}, p string) {
		w.requireString(obj, p, "id")
		w.requireString(obj, p, "name")
		w.requireString(obj, p, "value")
		w.requireInt(obj, p, "points")
		pp := joinPath(p, "placement")
		if placement, ok := w.requireObject(obj, p, "placement"); ok {
			w.requireEnum(placement, pp, "type", placementTypes)
			w.requireString(placement, pp, "host_id")
		}
	})

	if scoring, ok := w.requireObject(doc, "", "scoring"); ok {
		w.requireInt(scoring, "scoring", "total_points")
	}

	if narrative, ok := w.requireObject(doc, "", "narrative"); ok {
		p := "narrative"
		w.requireString(narrative, p, "scenario_background")
		w.requireStringArray(narrative, p, "objectives")
	}

	return w.errs
}

// entityArray checks a required top-level array whose items are objects, and
// applies check to each item.
func (w *walker) entityArray(doc map[string]interface{}, key string, check func(map[string]interface{}, string)) {
	items, ok := w.requireArray(doc, "", key)
	if !ok {
		return
	}
	for i, item := range items {
		path := indexPath(key, i)
		obj, ok := asObject(item)
		if !ok {
			w.add(path, "must be an object")
			continue
		}
		check(obj, path)
	}
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

func (w *walker) requireObject(obj map[string]interface{}, base, key string) (map[string]interface{}, bool) {
	path := joinPath(base, key)
	v, present := obj[key]
	if !present {
		w.add(path, "required field missing")
		return nil, false
	}
	child, ok := asObject(v)
	if !ok {
		w.add(path, "must be an object, got %s", typeName(v))
		return nil, false
	}
	return child, true
}

func (w *walker) requireArray(obj map[string]interface{}, base, key string) ([]interface{}, bool) {
	path := joinPath(base, key)
	v, present := obj[key]
	if !present {
		w.add(path, "required field missing")
		return nil, false
	}
	items, ok := v.([]interface{})
	if !ok {
		w.add(path, "must be an array, got %s", typeName(v))
		return nil, false
	}
	return items, true
}

func (w *walker) requireString(obj map[string]interface{}, base, key string) (string, bool) {
	path := joinPath(base, key)
	v, present := obj[key]
	if !present {
		w.add(path, "required field missing")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		w.add(path, "must be a string, got %s", typeName(v))
		return "", false
	}
	if s == "" {
		w.add(path, "must not be empty")
		return "", false
	}
	return s, true
}

func (w *walker) optionalString(obj map[string]interface{}, base, key string) {
	v, present := obj[key]
	if !present {
		return
	}
	if _, ok := v.(string); !ok {
		w.add(joinPath(base, key), "must be a string, got %s", typeName(v))
	}
}

func (w *walker) requireInt(obj map[string]interface{}, base, key string) {
	path := joinPath(base, key)
	v, present := obj[key]
	if !present {
		w.add(path, "required field missing")
		return
	}
	f, ok := v.(float64)
	if !ok {
		w.add(path, "must be an integer, got %s", typeName(v))
		return
	}
	if f != math.Trunc(f) {
		w.add(path, "must be an integer, got %v", f)
	}
}

func (w *walker) requireEnum(obj map[string]interface{}, base, key string, allowed []string) {
	s, ok := w.requireString(obj, base, key)
	if !ok {
		return
	}
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	w.add(joinPath(base, key), "unknown value %q (allowed: %s)", s, strings.Join(allowed, ", "))
}

func (w *walker) requireStringArray(obj map[string]interface{}, base, key string) {
	items, ok := w.requireArray(obj, base, key)
	if !ok {
		return
	}
	w.stringItems(items, joinPath(base, key))
}

func (w *walker) optionalStringArray(obj map[string]interface{}, base, key string) {
	v, present := obj[key]
	if !present {
		return
	}
	items, ok := v.([]interface{})
	if !ok {
		w.add(joinPath(base, key), "must be an array, got %s", typeName(v))
		return
	}
	w.stringItems(items, joinPath(base, key))
}

func (w *walker) stringItems(items []interface{}, path string) {
	for i, item := range items {
		if _, ok := item.(string); !ok {
			w.add(indexPath(path, i), "must be a string, got %s", typeName(item))
		}
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
