package metis

import (
	"fmt"
	"reflect"
	"strings"
)

// ServiceMap is a simple ServiceLookup over named services with string properties.
// Filters are comma separated key=value pairs that must all match. Services need not be
// comparable: maps, slices and funcs are matched on release by identity.
type ServiceMap struct {
	entries []serviceEntry
	refs    map[int]int
}

type serviceEntry struct {
	name  string
	svc   any
	props map[string]string
}

// NewServiceMap creates an empty service map.
func NewServiceMap() *ServiceMap {
	return &ServiceMap{refs: make(map[int]int)}
}

// Add registers svc under name with optional properties used by filters.
func (m *ServiceMap) Add(name string, svc any, props map[string]string) *ServiceMap {
	m.entries = append(m.entries, serviceEntry{name: name, svc: svc, props: props})
	return m
}

// AcquireService returns the first service registered under name that matches filter.
func (m *ServiceMap) AcquireService(name string, filter string) (any, error) {
	want, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	for i, e := range m.entries {
		if e.name != name || !matches(e.props, want) {
			continue
		}
		m.refs[i]++
		return e.svc, nil
	}
	return nil, fmt.Errorf("service %q not found (filter %q)", name, filter)
}

// ReleaseService drops one reference acquired through AcquireService.
func (m *ServiceMap) ReleaseService(svc any) error {
	for i, e := range m.entries {
		if m.refs[i] > 0 && sameService(e.svc, svc) {
			m.refs[i]--
			return nil
		}
	}
	return fmt.Errorf("service %v was not acquired", svc)
}

// References returns the number of outstanding acquisitions of svc.
func (m *ServiceMap) References(svc any) int {
	n := 0
	for i, e := range m.entries {
		if sameService(e.svc, svc) {
			n += m.refs[i]
		}
	}
	return n
}

// sameService compares comparable values with == and reference kinds by identity.
// Other non-comparable values fall back to deep equality.
func sameService(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil || ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Map, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return reflect.DeepEqual(a, b)
}

func parseFilter(filter string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(filter, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid service filter %q", filter)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func matches(props, want map[string]string) bool {
	for k, v := range want {
		if props[k] != v {
			return false
		}
	}
	return true
}
