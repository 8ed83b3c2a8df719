package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antonbillionaire/staffix/internal/clients"
)

// ExtractedFields are client facts found in one inbound message.
type ExtractedFields struct {
	Name  string
	Phone string
	// NameGuessed marks a name taken from a short form such as "I'm X".
	// Guessed names fill an empty record but never replace a stored one.
	NameGuessed bool
}

const maxNameRunes = 40

var (
	// Explicit introductions may carry a surname.
	fullNamePattern = regexp.MustCompile(`(?i)(?:my name is|меня зовут|моё имя|мое имя|mening ismim|ismim)\s*[:\-]?\s+(\p{L}[\p{L}'’\-]*)(?:\s+(\p{L}[\p{L}'’\-]*))?`)
	// Short forms only take one word.
	shortNamePattern = regexp.MustCompile(`(?i)(?:^|[\s,.!])(?:i'm|i am|call me|зовите меня)\s+(\p{L}[\p{L}'’\-]*)`)
	// "Это X" and "Men X" are only introductions when they are the whole message.
	bareNamePattern = regexp.MustCompile(`(?i)^(?:это|men)\s+(\p{L}[\p{L}'’\-]*)\s*[.!]?$`)

	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{6,}\d`)
	// Dates and clock times are blanked before phone scanning.
	dateTimePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}[./]\d{2,4}|\d{1,2}:\d{2}`)
	phoneCuePattern = regexp.MustCompile(`(?i)(?:тел|phone|номер|number|raqam|nomer|whatsapp)\S*[\s:.\-]*$`)
	currencyPattern = regexp.MustCompile(`(?i)^\s*(?:сум|so['’]?m|sum|uzs|руб|rub|тенге|kzt|usd|\$|€)`)
)

// Words that follow "I'm" or "это" but are not names.
var nameStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "not": true, "fine": true, "good": true,
	"ok": true, "okay": true, "here": true, "looking": true, "interested": true,
	"trying": true, "going": true, "just": true, "sorry": true, "free": true,
	"available": true, "late": true, "busy": true, "new": true, "back": true,
	"хорошо": true, "нормально": true, "я": true, "не": true,
	"yaxshi": true, "ham": true,
}

// ExtractClientName finds a self-introduction in text.
func ExtractClientName(text string) (string, bool) {
	name, _, ok := extractName(text)
	return name, ok
}

func extractName(text string) (name string, guessed, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, false
	}
	if m := fullNamePattern.FindStringSubmatch(text); m != nil {
		first := m[1]
		if !plausibleName(first) {
			return "", false, false
		}
		if second := m[2]; second != "" && plausibleName(second) && startsUpper(second) {
			return capitalize(first) + " " + capitalize(second), false, true
		}
		return capitalize(first), false, true
	}
	for _, p := range []*regexp.Regexp{shortNamePattern, bareNamePattern} {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		// Short forms are ambiguous ("I'm fine"), so require a capital letter.
		if word := m[1]; plausibleName(word) && startsUpper(word) {
			return capitalize(word), true, true
		}
	}
	return "", false, false
}

// ExtractPhone finds a 9 to 15 digit phone number and normalises it to +digits.
// Numbers written with separators need a leading +, a trunk 0 or 8, or a
// preceding cue word such as "тел" or "phone".
func ExtractPhone(text string) (string, bool) {
	text = dateTimePattern.ReplaceAllString(text, " ; ")
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		digits := digitsOnly(candidate)
		if n := len(digits); n < 9 || n > 15 {
			continue
		}
		if candidate[0] == '+' {
			return "+" + digits, true
		}
		if currencyPattern.MatchString(text[loc[1]:]) {
			continue
		}
		cued := phoneCuePattern.MatchString(text[:loc[0]])
		trunk := candidate[0] == '0' || candidate[0] == '8'
		if candidate != digits && !cued && !trunk {
			continue
		}
		return "+" + digits, true
	}
	return "", false
}

// ExtractFields runs both extractors.
func ExtractFields(text string) ExtractedFields {
	var out ExtractedFields
	if name, guessed, ok := extractName(text); ok {
		out.Name = name
		out.NameGuessed = guessed
	}
	if phone, ok := ExtractPhone(text); ok {
		out.Phone = phone
	}
	return out
}

// MergeClientFacts applies extracted values that are non-empty and
// materially different from what is stored.
func MergeClientFacts(existing clients.Facts, extracted ExtractedFields) clients.Facts {
	out := existing
	name := strings.TrimSpace(extracted.Name)
	switch {
	case name == "":
	case extracted.NameGuessed && strings.TrimSpace(existing.Name) != "":
	case normalizeName(name) != normalizeName(existing.Name):
		out.Name = name
	}
	if phone := strings.TrimSpace(extracted.Phone); phone != "" && digitsOnly(phone) != digitsOnly(existing.Phone) {
		out.Phone = phone
	}
	return out
}

func plausibleName(word string) bool {
	n := utf8.RuneCountInString(word)
	if n < 2 || n > maxNameRunes {
		return false
	}
	return !nameStopWords[strings.ToLower(word)]
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + word[size:]
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
