package fixture

import (
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/lauaudit/catalogue"
)

type fieldKind string

const (
	kindText     fieldKind = "text"
	kindCombobox fieldKind = "combobox"
	kindSelect   fieldKind = "select"
	kindNow      fieldKind = "now"
)

type option struct {
	Value string
	Label string
}

type fieldSpec struct {
	ID      string
	Label   string
	Kind    fieldKind
	Options []option
}

// formSpec describes the search form of one audit page.
type formSpec struct {
	profile catalogue.Profile
	h1      string
	fields  []fieldSpec
	// criteria: at least one of these must be filled.
	criteria    []string
	criteriaMsg string
	dates       bool
	csv         bool
}

var caseTypes = []option{
	{Value: "CIVIL", Label: "Civil"},
	{Value: "FAMILY", Label: "Family"},
	{Value: "PROBATE", Label: "Probate"},
}

func dateFields() []fieldSpec {
	return []fieldSpec{
		{ID: "startDate", Label: "Start date", Kind: kindText},
		{ID: "startTime", Label: "Start time", Kind: kindText},
		{ID: "startNow", Label: "Set start time to now", Kind: kindNow},
		{ID: "endDate", Label: "End date", Kind: kindText},
		{ID: "endTime", Label: "End time", Kind: kindText},
		{ID: "endNow", Label: "Set end time to now", Kind: kindNow},
	}
}

func text(id, label string) fieldSpec { return fieldSpec{ID: id, Label: label, Kind: kindText} }

func join(groups ...[]fieldSpec) []fieldSpec {
	var out []fieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var forms = map[catalogue.Profile]formSpec{
	catalogue.CaseAudit: {
		profile: catalogue.CaseAudit,
		h1:      "Case Audit",
		fields: join(
			[]fieldSpec{
				text("userId", "User ID"),
				text("caseRef", "Case reference"),
				{ID: "caseTypeId", Label: "Case type ID", Kind: kindCombobox, Options: caseTypes},
				text("jurisdiction", "Jurisdiction"),
			},
			dateFields(),
			[]fieldSpec{{ID: "activity", Label: "Activity", Kind: kindSelect, Options: []option{
				{Value: "", Label: "Any activity"},
				{Value: "CREATE", Label: "Create"},
				{Value: "UPDATE", Label: "Update"},
				{Value: "VIEW", Label: "View"},
			}}},
		),
		criteria:    []string{"userId", "caseRef", "caseTypeId", "jurisdiction"},
		criteriaMsg: "Enter at least one of user ID, case reference, case type ID or jurisdiction",
		dates:       true,
		csv:         true,
	},
	catalogue.ChallengedSpecificAccess: {
		profile:     catalogue.ChallengedSpecificAccess,
		h1:          "Challenged and Specific Access",
		fields:      join([]fieldSpec{text("userId", "User ID"), text("caseRef", "Case reference")}, dateFields()),
		criteria:    []string{"userId", "caseRef"},
		criteriaMsg: "Enter a user ID or a case reference",
		dates:       true,
		csv:         true,
	},
	catalogue.LogonAudit: {
		profile:     catalogue.LogonAudit,
		h1:          "Log-Ons Audit",
		fields:      join([]fieldSpec{text("userId", "User ID"), text("emailAddress", "Email address")}, dateFields()),
		criteria:    []string{"userId", "emailAddress"},
		criteriaMsg: "Enter a user ID or an email address",
		dates:       true,
		csv:         true,
	},
	catalogue.UserDeletionAudit: {
		profile: catalogue.UserDeletionAudit,
		h1:      "User Deletion Audit",
		fields: join([]fieldSpec{
			text("userId", "User ID"),
			text("emailAddress", "Email address"),
			text("firstName", "First name"),
			text("lastName", "Last name"),
		}, dateFields()),
		criteria:    []string{"userId", "emailAddress", "firstName", "lastName"},
		criteriaMsg: "Enter at least one of user ID, email address, first name or last name",
		dates:       true,
		csv:         true,
	},
	catalogue.UserDetailsAudit: {
		profile:     catalogue.UserDetailsAudit,
		h1:          "User Details Audit",
		fields:      []fieldSpec{text("userIdOrEmail", "User ID or email")},
		criteria:    []string{"userIdOrEmail"},
		criteriaMsg: "Enter a user ID or email address",
	},
}

type fieldError struct {
	ID      string
	Message string
}

// validate returns the field errors of a submitted search, in form order.
func (fs formSpec) validate(form url.Values) []fieldError {
	var errs []fieldError
	get := func(id string) string { return strings.TrimSpace(form.Get(id)) }

	filled := false
	for _, id := range fs.criteria {
		if get(id) != "" {
			filled = true
			break
		}
	}
	if !filled {
		errs = append(errs, fieldError{ID: fs.criteria[0], Message: fs.criteriaMsg})
	}
	if v := get("caseTypeId"); v != "" && !hasOption(caseTypes, v) {
		errs = append(errs, fieldError{ID: "caseTypeId", Message: "Select a case type from the list"})
	}
	if !fs.dates {
		return errs
	}

	parse := func(id, label, layout, format string) (time.Time, bool) {
		v := get(id)
		if v == "" {
			errs = append(errs, fieldError{ID: id, Message: "Enter a " + strings.ToLower(label)})
			return time.Time{}, false
		}
		t, err := time.Parse(layout, v)
		if err != nil {
			errs = append(errs, fieldError{ID: id, Message: label + " must be in the format " + format})
			return time.Time{}, false
		}
		return t, true
	}
	sd, ok1 := parse("startDate", "Start date", "2006-01-02", "YYYY-MM-DD")
	st, ok2 := parse("startTime", "Start time", "15:04", "HH:MM")
	ed, ok3 := parse("endDate", "End date", "2006-01-02", "YYYY-MM-DD")
	et, ok4 := parse("endTime", "End time", "15:04", "HH:MM")
	if ok1 && ok2 && ok3 && ok4 {
		start := sd.Add(time.Duration(st.Hour())*time.Hour + time.Duration(st.Minute())*time.Minute)
		end := ed.Add(time.Duration(et.Hour())*time.Hour + time.Duration(et.Minute())*time.Minute)
		if !end.After(start) {
			errs = append(errs, fieldError{ID: "endDate", Message: "End date must be after the start date"})
		}
	}
	return errs
}

func hasOption(opts []option, v string) bool {
	for _, o := range opts {
		if strings.EqualFold(o.Value, v) {
			return true
		}
	}
	return false
}
