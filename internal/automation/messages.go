package automation

import (
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/messaging/templates"
)

type messageData struct {
	ClientName   string
	BusinessName string
	ServiceName  string
	Date         string
	Time         string
}

var messageTemplates = map[string]map[string]string{
	kindReminder: {
		"en": `Hello{{if .ClientName}}, {{.ClientName}}{{end}}! A reminder from {{.BusinessName}}: {{.ServiceName}} on {{.Date}} at {{.Time}}. If your plans changed, just reply here.`,
		"ru": `Здравствуйте{{if .ClientName}}, {{.ClientName}}{{end}}! Напоминаем: {{.ServiceName}} в {{.BusinessName}} {{.Date}} в {{.Time}}. Если планы изменились, просто напишите нам.`,
		"uz": `Assalomu alaykum{{if .ClientName}}, {{.ClientName}}{{end}}! Eslatma: {{.BusinessName}}da {{.ServiceName}} {{.Date}} soat {{.Time}}da. Rejangiz o'zgargan bo'lsa, shu yerga yozing.`,
	},
	kindReview: {
		"en": `Thank you for visiting {{.BusinessName}}{{if .ClientName}}, {{.ClientName}}{{end}}! How was your {{.ServiceName}}? We would love a short review.`,
		"ru": `Спасибо, что посетили {{.BusinessName}}{{if .ClientName}}, {{.ClientName}}{{end}}! Как вам {{.ServiceName}}? Будем рады короткому отзыву.`,
		"uz": `{{.BusinessName}}ga tashrifingiz uchun rahmat{{if .ClientName}}, {{.ClientName}}{{end}}! {{.ServiceName}} sizga yoqdimi? Qisqa fikringizni kutamiz.`,
	},
	kindReactivation: {
		"en": `Hello{{if .ClientName}}, {{.ClientName}}{{end}}! We miss you at {{.BusinessName}}. Reply here and we will find a convenient time for you.`,
		"ru": `Здравствуйте{{if .ClientName}}, {{.ClientName}}{{end}}! Мы скучаем по вам в {{.BusinessName}}. Напишите нам, и мы подберём удобное время.`,
		"uz": `Assalomu alaykum{{if .ClientName}}, {{.ClientName}}{{end}}! {{.BusinessName}} sizni sog'indi. Bizga yozing, qulay vaqtni topamiz.`,
	},
}

func messageLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case "ru", "uz":
		return lang
	default:
		return "en"
	}
}

// genericService names the visit when the booked service is no longer listed.
var genericService = map[string]string{
	"en": "your appointment",
	"ru": "ваша запись",
	"uz": "qabulingiz",
}

func renderMessage(r *templates.Renderer, kind, lang string, data messageData) (string, error) {
	lang = messageLanguage(lang)
	if data.ServiceName == "" {
		data.ServiceName = genericService[lang]
	}
	return r.Render(kind+"."+lang, messageTemplates[kind][lang], data)
}

func localDate(t time.Time) string { return t.Format("02.01.2006") }

func localClock(t time.Time) string { return t.Format("15:04") }
