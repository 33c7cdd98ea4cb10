// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses pip requirements manifests (the
// requirements.txt format): one dependency per line, optionally
// version-pinned, with comments, blank lines, backslash
// continuations, and nested -r includes.
//
// The parsed manifest has a canonical serialization (sorted by
// canonical name, normalized constraint order) whose BLAKE3 keyed
// hash identifies the dependency set. Two manifests that differ only
// in comments, ordering, or name spelling (PEP 503 equivalence) hash
// identically, so the installer step can be skipped when nothing
// material changed.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Requirement is a single parsed dependency declaration.
type Requirement struct {
	// Name is the distribution name as written in the manifest.
	Name string `json:"name"`

	// Extras are the optional feature names from [bracket] syntax,
	// e.g. "requests[socks]".
	Extras []string `json:"extras,omitempty"`

	// Constraints are the version constraints, e.g. "==2.1.0" or
	// ">=1.24,<2". Each entry is a single operator+version pair.
	Constraints []string `json:"constraints,omitempty"`

	// Marker is the PEP 508 environment marker after ";", verbatim.
	Marker string `json:"marker,omitempty"`

	// Line is the 1-based line number in the manifest file.
	Line int `json:"line"`
}

// CanonicalName returns the PEP 503 normalized distribution name:
// lowercased, with runs of "-", "_", and "." collapsed to a single
// "-". "OpenEXR", "openexr", and "open_exr" do not all name the same
// distribution, but "Open-EXR" and "open_exr" do.
func (r Requirement) CanonicalName() string {
	return CanonicalName(r.Name)
}

// String renders the requirement in pip syntax (without the marker's
// surrounding whitespace normalized away).
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteString("]")
	}
	b.WriteString(strings.Join(r.Constraints, ","))
	if r.Marker != "" {
		b.WriteString("; ")
		b.WriteString(r.Marker)
	}
	return b.String()
}

// Pinned reports whether the requirement pins an exact version
// (a "==" or "===" constraint).
func (r Requirement) Pinned() bool {
	for _, constraint := range r.Constraints {
		if strings.HasPrefix(constraint, "==") {
			return true
		}
	}
	return false
}

// Manifest is a parsed requirements file.
type Manifest struct {
	// Path is the file the manifest was read from, empty when parsed
	// from bytes.
	Path string `json:"path,omitempty"`

	// Requirements are the parsed dependency declarations, in file
	// order, including those pulled in via -r includes.
	Requirements []Requirement `json:"requirements"`

	// Options are pip option lines (-e, --index-url, --find-links,
	// ...) passed through verbatim. pybundle does not interpret them;
	// pip receives the manifest file itself, not the parsed form.
	Options []string `json:"options,omitempty"`
}

// Empty reports whether the manifest declares no dependencies at all.
// An empty manifest makes the install step a trivial success.
func (m *Manifest) Empty() bool {
	return len(m.Requirements) == 0 && len(m.Options) == 0
}

// canonicalNameRun matches the character runs PEP 503 collapses.
var canonicalNameRun = regexp.MustCompile(`[-_.]+`)

// CanonicalName normalizes a distribution name per PEP 503.
func CanonicalName(name string) string {
	return strings.ToLower(canonicalNameRun.ReplaceAllString(name, "-"))
}

// requirementPattern matches "name[extras]constraints". The marker is
// split off before this pattern applies. Distribution names are ASCII
// letters, digits, and interior [-_.] runs (PEP 508).
var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`)

// constraintPattern matches one version constraint clause.
var constraintPattern = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*(\S+)$`)

// ParseError reports a manifest line that could not be parsed.
type ParseError struct {
	// Path is the manifest file, empty when parsing bytes.
	Path string

	// Line is the 1-based line number.
	Line int

	// Text is the offending logical line (after continuation folding).
	Text string

	// Reason describes what was wrong.
	Reason string
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return fmt.Sprintf("%s: %s: %q", where, e.Reason, e.Text)
}

// ReadFile reads and parses a requirements manifest from disk.
// Nested "-r other.txt" includes are resolved relative to the
// including file. A missing file is an error, never a silent skip.
func ReadFile(path string) (*Manifest, error) {
	return readFile(path, nil)
}

// readFile tracks the include stack to reject -r cycles.
func readFile(path string, stack []string) (*Manifest, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path %s: %w", path, err)
	}
	for _, seen := range stack {
		if seen == absolute {
			return nil, fmt.Errorf("manifest include cycle: %s", absolute)
		}
	}

	data, err := os.ReadFile(absolute)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	parsed, err := parse(data, absolute, append(stack, absolute))
	if err != nil {
		return nil, err
	}
	parsed.Path = path
	return parsed, nil
}

// Parse parses manifest bytes. Includes (-r) are rejected because
// there is no base directory to resolve them against; use [ReadFile]
// for manifests on disk.
func Parse(data []byte) (*Manifest, error) {
	return parse(data, "", nil)
}

func parse(data []byte, path string, stack []string) (*Manifest, error) {
	m := &Manifest{}

	lines := strings.Split(string(data), "\n")
	for index := 0; index < len(lines); index++ {
		lineNumber := index + 1
		line := lines[index]

		// Fold backslash continuations into one logical line.
		for strings.HasSuffix(strings.TrimRight(line, " \t"), `\`) && index+1 < len(lines) {
			line = strings.TrimSuffix(strings.TrimRight(line, " \t"), `\`)
			index++
			line += strings.TrimSpace(lines[index])
		}

		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Option lines start with "-". The -r include is the one
		// option pybundle follows; everything else passes through.
		if strings.HasPrefix(line, "-") {
			include, ok := includeTarget(line)
			if !ok {
				m.Options = append(m.Options, line)
				continue
			}
			if path == "" {
				return nil, &ParseError{Line: lineNumber, Text: line,
					Reason: "-r include requires a file-based manifest"}
			}
			nested, err := readFile(filepath.Join(filepath.Dir(path), include), stack)
			if err != nil {
				return nil, err
			}
			m.Requirements = append(m.Requirements, nested.Requirements...)
			m.Options = append(m.Options, nested.Options...)
			continue
		}

		requirement, err := parseRequirement(line)
		if err != nil {
			return nil, &ParseError{Path: path, Line: lineNumber, Text: line, Reason: err.Error()}
		}
		requirement.Line = lineNumber
		m.Requirements = append(m.Requirements, requirement)
	}

	return m, nil
}

// stripComment removes a trailing "#" comment. pip only treats "#" as
// a comment at line start or after whitespace, so "package#egg" style
// URLs in option lines survive.
func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

// includeTarget extracts the target of a "-r file" or
// "--requirement file" option line.
func includeTarget(line string) (string, bool) {
	for _, prefix := range []string{"-r ", "--requirement ", "--requirement="} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

func parseRequirement(line string) (Requirement, error) {
	var requirement Requirement

	// Split off the environment marker first; constraint parsing must
	// not see it.
	spec := line
	if specPart, markerPart, found := strings.Cut(line, ";"); found {
		spec = strings.TrimSpace(specPart)
		requirement.Marker = strings.TrimSpace(markerPart)
		if requirement.Marker == "" {
			return requirement, fmt.Errorf("empty environment marker")
		}
	}

	groups := requirementPattern.FindStringSubmatch(spec)
	if groups == nil || groups[1] == "" {
		return requirement, fmt.Errorf("unparseable requirement")
	}
	requirement.Name = groups[1]

	if extras := groups[2]; extras != "" {
		inner := strings.Trim(extras, "[]")
		for _, extra := range strings.Split(inner, ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				return requirement, fmt.Errorf("empty extra name")
			}
			requirement.Extras = append(requirement.Extras, extra)
		}
	}

	if rest := strings.TrimSpace(groups[3]); rest != "" {
		for _, clause := range strings.Split(rest, ",") {
			clause = strings.TrimSpace(clause)
			constraintGroups := constraintPattern.FindStringSubmatch(clause)
			if constraintGroups == nil {
				return requirement, fmt.Errorf("invalid version constraint %q", clause)
			}
			requirement.Constraints = append(requirement.Constraints,
				constraintGroups[1]+constraintGroups[2])
		}
	}

	return requirement, nil
}

// Canonical returns the manifest's canonical serialization: one
// requirement per line, canonical names, extras and constraints
// sorted, requirements sorted by canonical name, option lines sorted
// and appended last. This is the hashing input — see [Hash].
func (m *Manifest) Canonical() string {
	lines := make([]string, 0, len(m.Requirements)+len(m.Options))

	for _, requirement := range m.Requirements {
		extras := append([]string(nil), requirement.Extras...)
		for i, extra := range extras {
			extras[i] = CanonicalName(extra)
		}
		sort.Strings(extras)

		constraints := append([]string(nil), requirement.Constraints...)
		sort.Strings(constraints)

		canonical := Requirement{
			Name:        requirement.CanonicalName(),
			Extras:      extras,
			Constraints: constraints,
			Marker:      requirement.Marker,
		}
		lines = append(lines, canonical.String())
	}
	sort.Strings(lines)

	options := append([]string(nil), m.Options...)
	sort.Strings(options)
	lines = append(lines, options...)

	return strings.Join(lines, "\n")
}
