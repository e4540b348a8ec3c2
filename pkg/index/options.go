package index

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Options is a parsed index configuration string. The string is a YAML
// mapping, so both "maxLevel: 8" and {"maxLevel": 8} are accepted.
type Options map[string]any

func ParseOptions(config string) (Options, error) {
	opts := Options{}
	if strings.TrimSpace(config) == "" {
		return opts, nil
	}
	if err := yaml.Unmarshal([]byte(config), &opts); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "parse %q: %v", config, err)
	}
	return opts, nil
}

// Has reports whether key was set.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Int reads key as an integer in [low, high], or def when absent.
func (o Options) Int(key string, def, low, high int) (int, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, errors.Wrapf(ErrConfiguration, "%s: %v", key, err)
	}
	if v < low || v > high {
		return 0, errors.Wrapf(ErrConfiguration, "%s must be within [%d, %d], got %d", key, low, high, v)
	}
	return v, nil
}

// Choice reads key as one of the allowed values, or def when absent.
func (o Options) Choice(key, def string, allowed ...string) (string, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		return "", errors.Wrapf(ErrConfiguration, "%s: %v", key, err)
	}
	v = strings.ToLower(v)
	if len(allowed) > 0 && !slices.Contains(allowed, v) {
		return "", errors.Wrapf(ErrConfiguration, "%s must be one of %v, got %q", key, allowed, v)
	}
	return v, nil
}

// CheckKnown rejects keys outside known.
func (o Options) CheckKnown(known ...string) error {
	unknown := lo.Without(lo.Keys(o), known...)
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return errors.Wrapf(ErrConfiguration, "unknown options %v", unknown)
}
