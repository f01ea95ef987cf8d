package skills

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Requirements gates a skill on the host environment: every binary must
// resolve on PATH and every environment variable must be non-empty.
type Requirements struct {
	Bins []string `yaml:"bins" json:"bins"`
	Env  []string `yaml:"env" json:"env"`
}

// Empty reports whether the skill declares no requirements.
func (r Requirements) Empty() bool {
	return len(r.Bins) == 0 && len(r.Env) == 0
}

// Meta is the typed, all-optional view of a skill's frontmatter. ParseMeta
// never fails; absent or malformed fields stay zero.
type Meta struct {
	Description string
	Always      bool
	Requires    Requirements
	Commands    []SkillCommand

	// Raw holds the shallow key/value pairs from the lenient line scan.
	Raw map[string]string

	// VendorMetadata is the opaque provider-specific blob under the generic
	// "metadata" key, kept as a string for consumers that re-parse it.
	VendorMetadata string
}

// vendorMeta is the structure nested inside the "metadata" frontmatter value,
// keyed by product name for backward compatibility across variants.
type vendorMeta struct {
	Always   bool         `json:"always"`
	Requires Requirements `json:"requires"`
}

// structuredFrontmatter is the YAML shape of the frontmatter block.
type structuredFrontmatter struct {
	Description string       `yaml:"description"`
	Always      bool         `yaml:"always"`
	Requires    Requirements `yaml:"requires"`
	Commands    []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Help        string `yaml:"help"`
	} `yaml:"commands"`
}

// splitFrontmatter separates a leading "---" delimited block from the body.
// ok is false when the content does not start with a delimiter line.
func splitFrontmatter(content string) (frontmatter, body string, ok bool) {
	if !strings.HasPrefix(content, "---") {
		return "", content, false
	}
	lines := strings.Split(content, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", content, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", content, false
}

// StripFrontmatter returns the skill body without its frontmatter block.
func StripFrontmatter(content string) string {
	if _, body, ok := splitFrontmatter(content); ok {
		return strings.TrimSpace(body)
	}
	return content
}

// ParseMeta extracts a best-effort Meta from skill content. The lenient
// line-oriented scan always runs; the structured YAML pass and the vendor
// metadata pass add what they can. Nothing here returns an error: malformed
// frontmatter degrades to zero values, not a load failure.
func ParseMeta(content, skillName string) Meta {
	meta := Meta{Raw: map[string]string{}}

	fm, _, ok := splitFrontmatter(content)
	if !ok {
		return meta
	}

	// Shallow key/value scan with quote stripping. Nested values end up as
	// opaque strings, which is all the lenient consumers need.
	for _, line := range strings.Split(fm, "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)
		if key != "" {
			meta.Raw[key] = value
		}
	}
	meta.Description = meta.Raw["description"]
	meta.Always = meta.Raw["always"] == "true"
	meta.VendorMetadata = meta.Raw["metadata"]

	var structured structuredFrontmatter
	if err := yaml.Unmarshal([]byte(fm), &structured); err == nil {
		if structured.Description != "" {
			meta.Description = structured.Description
		}
		meta.Always = meta.Always || structured.Always
		meta.Requires = structured.Requires
		for _, c := range structured.Commands {
			if c.Name == "" {
				continue
			}
			meta.Commands = append(meta.Commands, SkillCommand{
				Name:        c.Name,
				Description: c.Description,
				HelpText:    c.Help,
				SkillName:   skillName,
			})
		}
	}

	if vendor, ok := parseVendorMeta(meta.VendorMetadata); ok {
		meta.Always = meta.Always || vendor.Always
		if !vendor.Requires.Empty() {
			meta.Requires = vendor.Requires
		}
	}

	return meta
}

// parseVendorMeta reads the provider-specific JSON blob, accepting both the
// native key and the legacy one.
func parseVendorMeta(raw string) (vendorMeta, bool) {
	if strings.TrimSpace(raw) == "" {
		return vendorMeta{}, false
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return vendorMeta{}, false
	}
	for _, key := range []string{"aide", "openclaw"} {
		if blob, ok := outer[key]; ok {
			var v vendorMeta
			if err := json.Unmarshal(blob, &v); err == nil {
				return v, true
			}
		}
	}
	return vendorMeta{}, false
}

// ParseCommands returns the command list declared in a skill's frontmatter.
// Malformed or absent frontmatter yields an empty list.
func ParseCommands(content, skillName string) []SkillCommand {
	return ParseMeta(content, skillName).Commands
}
