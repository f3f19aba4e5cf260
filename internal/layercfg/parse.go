package layercfg

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads the compact text form, e.g. "8 M 16 (32,0) M".
//
// Entries are separated by whitespace and at most one comma. Spaces inside
// a parenthesized pair are allowed: "(32, 0)". Empty entries such as ",8",
// "8,,16" or "8," are rejected. Parse only checks syntax; Compile (or
// Config.Validate) checks values.
func Parse(s string) (Config, error) {
	var cfg Config
	rest, err := skipSeparators(s, s, true)
	if err != nil {
		return nil, err
	}

	for rest != "" {
		switch {
		case rest[0] == 'M':
			cfg = append(cfg, M())
			rest = rest[1:]

		case rest[0] == '(':
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				return nil, fmt.Errorf("parse %q: unterminated %q", s, rest)
			}
			l, err := parsePair(rest[1:end])
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", s, err)
			}
			cfg = append(cfg, l)
			rest = rest[end+1:]

		default:
			end := strings.IndexFunc(rest, isSeparator)
			if end < 0 {
				end = len(rest)
			}
			n, err := strconv.Atoi(rest[:end])
			if err != nil {
				return nil, fmt.Errorf("parse %q: bad entry %q", s, rest[:end])
			}
			cfg = append(cfg, C(n))
			rest = rest[end:]
		}

		if rest != "" && !isSeparator(rune(rest[0])) {
			return nil, fmt.Errorf("parse %q: missing separator before %q", s, rest)
		}
		if rest, err = skipSeparators(s, rest, false); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MustParse is like Parse but panics on error. It is meant for literals.
func MustParse(s string) Config {
	cfg, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return cfg
}

func parsePair(s string) (LayerSpec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return LayerSpec{}, fmt.Errorf("bad pair %q: want (channels,padding)", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return LayerSpec{}, fmt.Errorf("bad channels in %q: %w", s, err)
	}
	p, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return LayerSpec{}, fmt.Errorf("bad padding in %q: %w", s, err)
	}
	return CP(n, p), nil
}

// skipSeparators drops the separator run at the start of rest. A run between
// two entries holds at most one comma; a leading or trailing run holds none.
func skipSeparators(s, rest string, leading bool) (string, error) {
	trimmed := strings.TrimLeftFunc(rest, isSeparator)
	limit := 1
	if leading || trimmed == "" {
		limit = 0
	}
	if strings.Count(rest[:len(rest)-len(trimmed)], ",") > limit {
		return "", fmt.Errorf("parse %q: empty entry", s)
	}
	return trimmed, nil
}

func isSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}
