package mapping

import (
	"strings"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/profile"
)

// Heuristic group names. GroupResume is the only group the filler will
// attach a file to.
const (
	GroupFirstName   = "first_name"
	GroupLastName    = "last_name"
	GroupFullName    = "full_name"
	GroupEmail       = "email"
	GroupPhone       = "phone"
	GroupAddress     = "address"
	GroupResume      = "resume"
	GroupCoverLetter = "cover_letter"
	GroupExperience  = "experience"
	GroupEducation   = "education"
	GroupSkills      = "skills"
	GroupPortfolio   = "portfolio"
	GroupLinkedIn    = "linkedin"
	GroupWorkAuth    = "work_auth"
	GroupSponsorship = "sponsorship"
	GroupSalary      = "salary"
	GroupLocation    = "location"
	GroupReferral    = "referral"
)

// group is one row of the heuristic table. Patterns are written in
// normalized form (lower case, "_" and "-" as spaces) and tried in order.
// A pattern matches whole words; a trailing "*" lets the last word run on
// ("skill*" matches "skills"), and a leading "=" requires the whole text.
type group struct {
	name     string
	patterns []string
	resolve  func(p *profile.Profile, field schemas.FieldDescriptor) string
}

func keys(names ...string) func(*profile.Profile, schemas.FieldDescriptor) string {
	return func(p *profile.Profile, _ schemas.FieldDescriptor) string {
		for _, k := range names {
			if v, ok := p.Get(k); ok {
				if s, ok := profile.Stringify(v); ok && s != "" {
					return s
				}
			}
		}
		return ""
	}
}

func accessor(fn func(*profile.Profile) string) func(*profile.Profile, schemas.FieldDescriptor) string {
	return func(p *profile.Profile, _ schemas.FieldDescriptor) string { return fn(p) }
}

// defaultGroups is the heuristic table in its default order.
var defaultGroups = []group{
	{GroupFirstName, []string{"first name", "firstname", "given name", "fname", "forename"}, accessor((*profile.Profile).FirstName)},
	{GroupLastName, []string{"last name", "lastname", "surname", "family name", "lname"}, accessor((*profile.Profile).LastName)},
	{GroupEmail, []string{"email*", "e mail"}, accessor((*profile.Profile).Email)},
	{GroupPhone, []string{"phone*", "telephone", "mobile*", "cell", "cellphone"}, accessor((*profile.Profile).Phone)},
	{GroupAddress, []string{"address*", "street"}, accessor((*profile.Profile).Address)},
	{GroupResume, []string{"resume*", "résumé", "cv", "curriculum*"}, keys("resume_path", "resume")},
	{GroupCoverLetter, []string{"cover letter", "coverletter", "motivation*"}, keys("cover_letter")},
	{GroupExperience, []string{"experience*", "work history", "employment*"}, resolveExperience},
	{GroupEducation, []string{"education*", "degree*", "university", "school*"}, accessor((*profile.Profile).Education)},
	{GroupSkills, []string{"skill*"}, accessor((*profile.Profile).Skills)},
	{GroupPortfolio, []string{"portfolio*", "website*", "github*", "personal site"}, keys("portfolio", "website", "github")},
	{GroupLinkedIn, []string{"linkedin*"}, accessor((*profile.Profile).LinkedIn)},
	{GroupWorkAuth, []string{"work auth*", "authorized to work", "authorised to work", "eligible to work", "right to work"}, keys("work_auth", "work_authorization")},
	{GroupSponsorship, []string{"sponsor*", "visa"}, keys("requires_sponsorship", "sponsorship", "visa_sponsorship")},
	{GroupSalary, []string{"salary*", "compensation", "pay expectation*", "desired pay"}, keys("salary_expectation", "salary", "desired_salary")},
	{GroupLocation, []string{"location*", "timezone", "time zone", "city", "relocat*"}, resolveLocation},
	{GroupReferral, []string{"referral*", "referred", "hear about", "how did you find"}, keys("referral_source", "referral")},
	{GroupFullName, []string{"full name", "fullname", "legal name", "your name", "candidate name", "applicant name", "=name"}, accessor((*profile.Profile).FullName)},
}

func resolveExperience(p *profile.Profile, field schemas.FieldDescriptor) string {
	text := normalize(field.Identifier + " " + field.Label)
	if strings.Contains(text, "year") {
		if s := p.String("years_of_experience"); s != "" {
			return s
		}
	}
	if s := p.Experience(); s != "" {
		return s
	}
	return p.String("years_of_experience")
}

func resolveLocation(p *profile.Profile, field schemas.FieldDescriptor) string {
	text := normalize(field.Identifier + " " + field.Label)
	if strings.Contains(text, "zone") {
		if s := p.String("timezone"); s != "" {
			return s
		}
	}
	for _, path := range [][]string{{"location"}, {"contact_information", "current_address", "city"}, {"timezone"}} {
		if s := p.String(path...); s != "" {
			return s
		}
	}
	return ""
}

// orderGroups returns the table with the named groups first, in the given
// order, and the remaining groups after them in their default order.
// Unknown names are ignored.
func orderGroups(order []string) []group {
	if len(order) == 0 {
		return defaultGroups
	}
	byName := make(map[string]group, len(defaultGroups))
	for _, g := range defaultGroups {
		byName[g.name] = g
	}

	used := make(map[string]bool, len(order))
	out := make([]group, 0, len(defaultGroups))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		g, ok := byName[name]
		if !ok || used[name] {
			continue
		}
		used[name] = true
		out = append(out, g)
	}
	for _, g := range defaultGroups {
		if !used[g.name] {
			out = append(out, g)
		}
	}
	return out
}

// matchGroup finds the heuristic group for a field. All groups are tried
// against the identifier before any is tried against the label.
func matchGroup(groups []group, field schemas.FieldDescriptor) (group, bool) {
	for _, text := range []string{field.Identifier, field.Label} {
		text = normalize(text)
		if text == "" {
			continue
		}
		for _, g := range groups {
			for _, pattern := range g.patterns {
				if matchPattern(text, pattern) {
					return g, true
				}
			}
		}
	}
	return group{}, false
}

// matchPattern applies one table pattern to normalized text.
func matchPattern(text, pattern string) bool {
	if whole, ok := strings.CutPrefix(pattern, "="); ok {
		return text == whole
	}
	padded := " " + text + " "
	if stem, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.Contains(padded, " "+stem)
	}
	return strings.Contains(padded, " "+pattern+" ")
}

var normalizer = strings.NewReplacer("_", " ", "-", " ")

func normalize(s string) string {
	return strings.Join(strings.Fields(normalizer.Replace(strings.ToLower(s))), " ")
}

// GroupOf returns the heuristic group of field using the default order, or "".
func GroupOf(field schemas.FieldDescriptor) string {
	g, _ := matchGroup(defaultGroups, field)
	return g.name
}

// GroupNames lists the heuristic groups in default order.
func GroupNames() []string {
	names := make([]string, len(defaultGroups))
	for i, g := range defaultGroups {
		names[i] = g.name
	}
	return names
}
