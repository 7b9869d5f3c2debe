package strategy

import (
	"strings"
	"unicode"
)

// riskSynonyms extends the built-in topic labels with terms that signal them.
var riskSynonyms = map[string][]string{
	"medical": {
		"medicine", "medication", "diagnosis", "diagnose", "symptom", "dose", "dosage",
		"prescription", "treatment", "disease", "doctor", "surgery", "pregnant", "pregnancy",
	},
	"legal": {
		"law", "lawsuit", "lawyer", "attorney", "contract", "sue", "court", "liability", "custody",
	},
	"financial": {
		"finance", "invest", "investment", "investing", "stock", "loan", "mortgage", "tax", "taxes",
		"crypto", "bitcoin", "retirement", "pension",
	},
	"safety": {
		"suicide", "self-harm", "weapon", "explosive", "overdose", "poison", "firearm",
	},
}

// matchHighRisk returns the first configured label whose name or synonym
// appears as a word in text.
func matchHighRisk(text string, labels []string) (string, bool) {
	if len(labels) == 0 {
		return "", false
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		words[w] = struct{}{}
	}
	has := func(term string) bool {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return false
		}
		if strings.ContainsRune(term, ' ') {
			return strings.Contains(strings.ToLower(text), term)
		}
		_, ok := words[term]
		if !ok {
			_, ok = words[term+"s"]
		}
		return ok
	}

	for _, label := range labels {
		if has(label) {
			return label, true
		}
		for _, syn := range riskSynonyms[strings.ToLower(strings.TrimSpace(label))] {
			if has(syn) {
				return label, true
			}
		}
	}
	return "", false
}
