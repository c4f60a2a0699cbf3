package templates

// Human labels for the CRM's job-type codes, per locale. Unknown codes
// fall through as-is so a new CRM value never blanks a notification.

var jobTypeLabels = map[string]map[string]string{
	"fr": {
		"residential": "Résidentiel",
		"commercial":  "Commercial",
		"industrial":  "Industriel",
	},
	"en": {
		"residential": "Residential",
		"commercial":  "Commercial",
		"industrial":  "Industrial",
	},
}

var jobSpecificLabels = map[string]map[string]string{
	"fr": {
		"flat":  "Toit plat",
		"low":   "Pente faible",
		"steep": "Pente forte",
	},
	"en": {
		"flat":  "Flat roof",
		"low":   "Low slope",
		"steep": "Steep slope",
	},
}

func Locale(locale string) string {
	if locale == "fr" {
		return "fr"
	}
	return "en"
}

func JobLabel(locale, code string) string {
	if l, ok := jobTypeLabels[Locale(locale)][code]; ok {
		return l
	}
	return code
}

func JobSpecificLabel(locale, code string) string {
	if l, ok := jobSpecificLabels[Locale(locale)][code]; ok {
		return l
	}
	return code
}
