package specdsl

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// lengthUnits enumerates the CSS-ish length units spec.md §4.1 names.
var lengthUnits = []string{"em", "ex", "px", "in", "cm", "mm", "pt", "pc", "%"}

// linenosPattern matches a comma-delimited range spec like "1, 2-3, 7".
var linenosPattern = regexp.MustCompile(`^\s*\d+(\s*-\s*\d+)?(\s*,\s*\d+(\s*-\s*\d+)?)*\s*$`)

// Validator accepts a raw option string and produces a typed Value or
// fails with a KindInvalidOptionValue-flavored error.
type Validator func(raw string) (entities.OptionValue, error)

// GetValidator returns a Validator for a declared OptionSpec. A "|"-joined
// Type string is a union: each alternative is tried in declaration
// order and the first success wins; total failure reports every
// alternative that was tried.
func GetValidator(spec OptionSpec) Validator {
	kinds := strings.Split(spec.Type, "|")
	if len(kinds) == 1 {
		return primitiveValidator(strings.TrimSpace(kinds[0]), spec.Enum)
	}
	validators := make([]Validator, 0, len(kinds))
	for _, k := range kinds {
		validators = append(validators, primitiveValidator(strings.TrimSpace(k), spec.Enum))
	}
	return func(raw string) (entities.OptionValue, error) {
		for _, v := range validators {
			if val, err := v(raw); err == nil {
				return val, nil
			}
		}
		return entities.OptionValue{}, fmt.Errorf("value %q did not match any of %v", raw, kinds)
	}
}

func primitiveValidator(kind string, enum []string) Validator {
	switch kind {
	case "integer":
		return func(raw string) (entities.OptionValue, error) {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return entities.OptionValue{}, fmt.Errorf("%q is not an integer", raw)
			}
			return entities.OptionValue{Raw: raw, Kind: kind, Int: n}, nil
		}
	case "nonnegative_integer":
		return func(raw string) (entities.OptionValue, error) {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || n < 0 {
				return entities.OptionValue{}, fmt.Errorf("%q is not a non-negative integer", raw)
			}
			return entities.OptionValue{Raw: raw, Kind: kind, Int: n}, nil
		}
	case "path":
		return func(raw string) (entities.OptionValue, error) {
			if strings.TrimSpace(raw) == "" {
				return entities.OptionValue{}, fmt.Errorf("path option cannot be empty")
			}
			return entities.OptionValue{Raw: raw, Kind: kind}, nil
		}
	case "uri":
		return func(raw string) (entities.OptionValue, error) {
			if _, err := url.Parse(raw); err != nil {
				return entities.OptionValue{}, fmt.Errorf("%q is not a valid URI: %w", raw, err)
			}
			return entities.OptionValue{Raw: raw, Kind: kind}, nil
		}
	case "string":
		return func(raw string) (entities.OptionValue, error) {
			return entities.OptionValue{Raw: raw, Kind: kind}, nil
		}
	case "length":
		return func(raw string) (entities.OptionValue, error) {
			trimmed := strings.TrimSpace(raw)
			for _, unit := range lengthUnits {
				if strings.HasSuffix(trimmed, unit) {
					numPart := strings.TrimSuffix(trimmed, unit)
					if _, err := strconv.ParseFloat(numPart, 64); err == nil {
						return entities.OptionValue{Raw: raw, Kind: kind}, nil
					}
				}
			}
			return entities.OptionValue{}, fmt.Errorf("%q is not a valid length (number + unit from %v)", raw, lengthUnits)
		}
	case "boolean":
		return func(raw string) (entities.OptionValue, error) {
			switch strings.ToLower(strings.TrimSpace(raw)) {
			case "true":
				return entities.OptionValue{Raw: raw, Kind: kind, Bool: true}, nil
			case "false":
				return entities.OptionValue{Raw: raw, Kind: kind, Bool: false}, nil
			default:
				return entities.OptionValue{}, fmt.Errorf("%q is not true|false", raw)
			}
		}
	case "flag":
		return func(raw string) (entities.OptionValue, error) {
			if strings.TrimSpace(raw) != "" {
				return entities.OptionValue{}, fmt.Errorf("flag option must have an empty argument, got %q", raw)
			}
			return entities.OptionValue{Raw: raw, Kind: kind, Bool: true}, nil
		}
	case "linenos":
		return func(raw string) (entities.OptionValue, error) {
			if !linenosPattern.MatchString(raw) {
				return entities.OptionValue{}, fmt.Errorf("%q is not a valid comma-delimited line range", raw)
			}
			return entities.OptionValue{Raw: raw, Kind: kind}, nil
		}
	case "enum":
		allowed := make(map[string]bool, len(enum))
		for _, v := range enum {
			allowed[v] = true
		}
		return func(raw string) (entities.OptionValue, error) {
			if !allowed[raw] {
				return entities.OptionValue{}, fmt.Errorf("%q is not one of %v", raw, enum)
			}
			return entities.OptionValue{Raw: raw, Kind: kind}, nil
		}
	default:
		return func(raw string) (entities.OptionValue, error) {
			return entities.OptionValue{}, fmt.Errorf("unknown option type %q", kind)
		}
	}
}

// ParseLinenos parses a linenos-validated string ("1, 2-3") into a list
// of inclusive (start, end) ranges, matching the emphasize-lines option
// shape used by code-block (spec.md §4.4, scenario S1).
func ParseLinenos(raw string) ([][2]int, error) {
	if !linenosPattern.MatchString(raw) {
		return nil, fmt.Errorf("%q is not a valid comma-delimited line range", raw)
	}
	var ranges [][2]int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "-"); idx >= 0 {
			start, err1 := strconv.Atoi(strings.TrimSpace(part[:idx]))
			end, err2 := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			ranges = append(ranges, [2]int{start, end})
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid line number %q", part)
			}
			ranges = append(ranges, [2]int{n, n})
		}
	}
	return ranges, nil
}
