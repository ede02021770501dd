// Package profile loads the applicant profile and exposes read-only views of
// it. A Profile is never mutated after Load or New; every accessor that hands
// out structured data returns a copy.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// ErrEmptyProfile is returned when a profile document decodes to nothing.
var ErrEmptyProfile = errors.New("profile is empty")

// addressOrder is the order in which current_address parts are joined.
// Keys not listed follow in sorted order.
var addressOrder = []string{"street", "city", "state", "country", "zip_code"}

// Profile is an immutable applicant profile.
type Profile struct {
	data map[string]interface{}
	path string
}

// New builds a profile from an in-memory document. data is deep-copied.
func New(data map[string]interface{}) *Profile {
	return &Profile{data: copyMap(data)}
}

// Load reads a JSON or YAML profile from path. A leading "~" is expanded.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Profile, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand profile path %q: %w", path, err)
	}

	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("could not read profile: %w", err)
	}

	var doc map[string]interface{}
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode profile %s: %w", expanded, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%s: %w", expanded, ErrEmptyProfile)
	}

	p := New(doc)
	p.path = expanded
	return p, nil
}

// Path is the file the profile was loaded from, empty for in-memory profiles.
func (p *Profile) Path() string { return p.path }

// With returns a copy of the profile with the top-level key set to v. The
// receiver is unchanged and the copy keeps its source path.
func (p *Profile) With(key string, v interface{}) *Profile {
	data := copyMap(p.data)
	data[key] = copyValue(v)
	return &Profile{data: data, path: p.path}
}

// Raw returns a deep copy of the whole document.
func (p *Profile) Raw() map[string]interface{} { return copyMap(p.data) }

// Keys returns the top-level keys in sorted order.
func (p *Profile) Keys() []string {
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a copy of the top-level value whose key equals key,
// ignoring case. An exact-case match wins over a folded one.
func (p *Profile) Get(key string) (interface{}, bool) {
	if v, ok := p.data[key]; ok {
		return copyValue(v), true
	}
	for _, k := range p.Keys() {
		if strings.EqualFold(k, key) {
			return copyValue(p.data[k]), true
		}
	}
	return nil, false
}

// Lookup walks a path of nested keys, e.g. Lookup("contact_information", "email").
func (p *Profile) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = p.data
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return copyValue(cur), true
}

// String returns the stringified value at path, or "" when it is absent,
// empty, or not a scalar.
func (p *Profile) String(path ...string) string {
	v, ok := p.Lookup(path...)
	if !ok {
		return ""
	}
	s, _ := Stringify(v)
	return s
}

// first returns the first non-empty string among the given paths.
func (p *Profile) first(paths ...[]string) string {
	for _, path := range paths {
		if s := p.String(path...); s != "" {
			return s
		}
	}
	return ""
}

// Email is the contact email, falling back to a top-level "email".
func (p *Profile) Email() string {
	return p.first([]string{"contact_information", "email"}, []string{"email"})
}

// Phone is the contact phone, falling back to a top-level "phone".
func (p *Profile) Phone() string {
	return p.first([]string{"contact_information", "phone"}, []string{"phone"})
}

// LinkedIn is the professional network profile URL.
func (p *Profile) LinkedIn() string {
	return p.first([]string{"contact_information", "linkedin"}, []string{"linkedin"})
}

// Address joins the current address parts with ", ". A plain string address
// is returned as-is.
func (p *Profile) Address() string {
	for _, path := range [][]string{{"contact_information", "current_address"}, {"current_address"}, {"address"}} {
		v, ok := p.Lookup(path...)
		if !ok {
			continue
		}
		switch addr := v.(type) {
		case map[string]interface{}:
			if s := joinAddress(addr); s != "" {
				return s
			}
		default:
			if s, ok := Stringify(addr); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func joinAddress(addr map[string]interface{}) string {
	seen := make(map[string]bool, len(addr))
	var parts []string
	add := func(k string) {
		seen[k] = true
		if s, ok := Stringify(addr[k]); ok && s != "" {
			parts = append(parts, s)
		}
	}
	for _, k := range addressOrder {
		if _, ok := addr[k]; ok {
			add(k)
		}
	}
	rest := make([]string, 0, len(addr))
	for k := range addr {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	return strings.Join(parts, ", ")
}

// Skills joins the skills list with ", ".
func (p *Profile) Skills() string {
	return p.String("skills")
}

// Education renders each entry as "<degree> in <field_of_study> from
// <institution>" and joins the entries with "; ".
func (p *Profile) Education() string {
	v, ok := p.Lookup("education")
	if !ok {
		return ""
	}
	entries, ok := v.([]interface{})
	if !ok {
		s, _ := Stringify(v)
		return s
	}

	var rendered []string
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			if s, ok := Stringify(e); ok && s != "" {
				rendered = append(rendered, s)
			}
			continue
		}
		degree, _ := Stringify(m["degree"])
		field, _ := Stringify(m["field_of_study"])
		school, _ := Stringify(m["institution"])

		var b strings.Builder
		b.WriteString(degree)
		if field != "" {
			b.WriteString(" in " + field)
		}
		if school != "" {
			b.WriteString(" from " + school)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			rendered = append(rendered, s)
		}
	}
	return strings.Join(rendered, "; ")
}

// Experience summarizes the experience list as "<job_title> at <company>".
func (p *Profile) Experience() string {
	v, ok := p.Lookup("experience")
	if !ok {
		return ""
	}
	entries, ok := v.([]interface{})
	if !ok {
		s, _ := Stringify(v)
		return s
	}
	var rendered []string
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := Stringify(m["job_title"])
		company, _ := Stringify(m["company"])
		switch {
		case title != "" && company != "":
			rendered = append(rendered, title+" at "+company)
		case title != "":
			rendered = append(rendered, title)
		case company != "":
			rendered = append(rendered, company)
		}
	}
	return strings.Join(rendered, "; ")
}

// FullName is "name", or first and last name joined by a space.
func (p *Profile) FullName() string {
	if s := p.String("name"); s != "" {
		return s
	}
	return strings.TrimSpace(p.String("first_name") + " " + p.String("last_name"))
}

// FirstName is "first_name", or the first word of "name".
func (p *Profile) FirstName() string {
	if s := p.String("first_name"); s != "" {
		return s
	}
	if parts := strings.Fields(p.String("name")); len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// LastName is "last_name", or everything after the first word of "name".
func (p *Profile) LastName() string {
	if s := p.String("last_name"); s != "" {
		return s
	}
	if parts := strings.Fields(p.String("name")); len(parts) > 1 {
		return strings.Join(parts[1:], " ")
	}
	return ""
}

// ResumePath is the profile's resume_path, unexpanded.
func (p *Profile) ResumePath() string { return p.String("resume_path") }

// Problems lists the gaps that will stop common forms from being completed.
// An empty result means the profile looks usable.
func (p *Profile) Problems() []string {
	var problems []string
	if p.FullName() == "" {
		problems = append(problems, "no name: set name or first_name/last_name")
	}
	if p.Email() == "" {
		problems = append(problems, "no email: set contact_information.email")
	}
	if p.Phone() == "" {
		problems = append(problems, "no phone: set contact_information.phone")
	}
	if rp := p.ResumePath(); rp == "" {
		problems = append(problems, "no resume_path: file fields will use applicant.resume_path")
	} else if expanded, err := homedir.Expand(rp); err != nil {
		problems = append(problems, fmt.Sprintf("resume_path %q cannot be expanded: %v", rp, err))
	} else if _, err := os.Stat(expanded); err != nil {
		problems = append(problems, fmt.Sprintf("resume_path %q is not readable: %v", rp, err))
	}
	return problems
}

// Stringify renders a scalar, or a list of scalars joined with ", ". It
// reports false for maps and for lists containing maps or lists.
func Stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := Stringify(item)
			if !ok {
				return "", false
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	case []string:
		return strings.Join(t, ", "), true
	case map[string]interface{}:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = copyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	default:
		return v
	}
}
