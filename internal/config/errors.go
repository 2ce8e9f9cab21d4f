package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConfigError is a fatal configuration problem with section/option context.
type ConfigError struct {
	Section string
	Option  string
	Msg     string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Option != "":
		return fmt.Sprintf("config: [%s] %s: %s", e.Section, e.Option, e.Msg)
	case e.Section != "":
		return fmt.Sprintf("config: [%s]: %s", e.Section, e.Msg)
	default:
		return "config: " + e.Msg
	}
}

func configErrorf(section, option, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Option: option, Msg: fmt.Sprintf(format, args...)}
}

// options reads one raw section, tracking which keys were consumed so that
// strict sections can reject leftovers. Type conversion failures are
// collected rather than returned per call.
type options struct {
	section string
	values  map[string]string
	used    map[string]bool
	errs    []error
}

func newOptions(section string, values map[string]string) *options {
	return &options{section: section, values: values, used: map[string]bool{}}
}

func (o *options) has(key string) bool {
	_, ok := o.values[key]
	return ok
}

func (o *options) raw(key string) (string, bool) {
	v, ok := o.values[key]
	if ok {
		o.used[key] = true
	}
	return v, ok
}

func (o *options) str(key, def string) string {
	if v, ok := o.raw(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (o *options) boolean(key string, def bool) bool {
	v, ok := o.raw(key)
	if !ok {
		return def
	}
	b, err := parseBool(v)
	if err != nil {
		o.errs = append(o.errs, configErrorf(o.section, key, "%v", err))
		return def
	}
	return b
}

func (o *options) integer(key string, def int64) int64 {
	v, ok := o.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		o.errs = append(o.errs, configErrorf(o.section, key, "not an integer: %q", v))
		return def
	}
	return n
}

func (o *options) float(key string, def float64) float64 {
	v, ok := o.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		o.errs = append(o.errs, configErrorf(o.section, key, "not a number: %q", v))
		return def
	}
	return f
}

// floatPtr distinguishes "absent" from any numeric value.
func (o *options) floatPtr(key string) *float64 {
	if !o.has(key) {
		return nil
	}
	f := o.float(key, 0)
	return &f
}

func (o *options) boolPtr(key string) *bool {
	if !o.has(key) {
		return nil
	}
	b := o.boolean(key, false)
	return &b
}

// enum validates against an allowed set, case-insensitively.
func (o *options) enum(key, def string, allowed ...string) string {
	v, ok := o.raw(key)
	if !ok {
		return def
	}
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	o.errs = append(o.errs, configErrorf(o.section, key,
		"must be one of %s, got %q", strings.Join(allowed, ", "), v))
	return def
}

// rejectUnknown flags keys never consumed by a getter.
func (o *options) rejectUnknown() {
	var unknown []string
	for k := range o.values {
		if !o.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		o.errs = append(o.errs, configErrorf(o.section, k, "unknown option"))
	}
}

func (o *options) err() error {
	if len(o.errs) == 0 {
		return nil
	}
	return o.errs[0]
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}
