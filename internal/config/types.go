package config

import (
	"fmt"
	"strings"
)

// Format is the module-linkage convention of the output tree.
type Format string

const (
	// FormatCJS is the sync-linked convention (CommonJS, require()).
	FormatCJS Format = "cjs"
	// FormatESM is the async-linked convention (ES modules, import).
	FormatESM Format = "esm"
)

// ParseFormat accepts the canonical names plus their common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cjs", "commonjs", "sync", "sync-linked":
		return FormatCJS, nil
	case "esm", "module", "async", "async-linked":
		return FormatESM, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected cjs or esm)", s)
	}
}

// PackageType is the package.json "type" value matching the format.
func (f Format) PackageType() string {
	if f == FormatESM {
		return "module"
	}
	return "commonjs"
}

// Mode selects development or production builds.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// IsDevelopment reports whether m is the development mode.
func (m Mode) IsDevelopment() bool { return m == ModeDevelopment }

// targets lists the accepted language targets. es5 predates module syntax
// and is only valid for sync-linked output.
var targets = map[string]bool{
	"es5": true, "es6": true, "es2015": true, "es2016": true, "es2017": true,
	"es2018": true, "es2019": true, "es2020": true, "es2021": true, "es2022": true,
	"esnext": true,
}

// CheckTarget reports whether target is supported and can be paired with
// format.
func CheckTarget(target string, format Format) error {
	t := strings.ToLower(strings.TrimSpace(target))
	if !targets[t] {
		return fmt.Errorf("unsupported target %q", target)
	}
	if t == "es5" && format == FormatESM {
		return fmt.Errorf("target %q cannot express %s output", target, format)
	}
	return nil
}
