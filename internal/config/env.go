package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the value of an environment variable and whether it was
// set.  os.LookupEnv satisfies it; tests pass a map-backed function.
type Lookup func(key string) (string, bool)

// MapLookup adapts a map to Lookup.
func MapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// reader collects parse errors so Parse can report every bad key at once.
type reader struct {
	lookup Lookup
	errs   []error
}

func (r *reader) raw(k string) (string, bool) {
	v, ok := r.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(k, d string) string {
	if v, ok := r.raw(k); ok {
		return v
	}
	return d
}

func (r *reader) required(k string) string {
	v, ok := r.raw(k)
	if !ok {
		r.errs = append(r.errs, fmt.Errorf("missing required env var: %s", k))
	}
	return v
}

func (r *reader) boolean(k string, d bool) bool {
	v, ok := r.raw(k)
	if !ok {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.errs = append(r.errs, fmt.Errorf("invalid bool for %s: %q", k, v))
	return d
}

func (r *reader) integer(k string, d int) int {
	v, ok := r.raw(k)
	if !ok {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid int for %s: %q", k, v))
		return d
	}
	return n
}

func (r *reader) duration(k string, d time.Duration) time.Duration {
	v, ok := r.raw(k)
	if !ok {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid duration for %s: %q", k, v))
		return d
	}
	return dur
}

func (r *reader) fail(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf(format, args...))
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}
