package catalog

import "strings"

// LanguageFilter selects either every project or the projects of exactly one
// language. The zero value selects every project.
type LanguageFilter struct {
	only     bool
	language string
}

// AllLanguages is the "no language constraint" filter.
func AllLanguages() LanguageFilter { return LanguageFilter{} }

// OnlyLanguage keeps projects whose language equals lang exactly. An empty lang
// keeps projects with no language set.
func OnlyLanguage(lang string) LanguageFilter {
	return LanguageFilter{only: true, language: lang}
}

// IsAll reports whether f is the AllLanguages sentinel.
func (f LanguageFilter) IsAll() bool { return !f.only }

// Language returns the selected language and false for AllLanguages.
func (f LanguageFilter) Language() (string, bool) { return f.language, f.only }

func (f LanguageFilter) String() string {
	if !f.only {
		return "(all)"
	}
	if f.language == "" {
		return "(none)"
	}
	return f.language
}

// Matches reports whether a project with lang passes f.
func (f LanguageFilter) Matches(lang string) bool {
	return !f.only || lang == f.language
}

// matchesQuery reports whether name or description contains the trimmed query,
// ignoring case. A blank query matches everything.
func matchesQuery(query, name, description string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(name), q) ||
		strings.Contains(strings.ToLower(description), q)
}
