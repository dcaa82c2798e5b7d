package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language
// comes from the "lang" query parameter, then Accept-Language, then the
// default passed to Init.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := Negotiate(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Negotiate picks the best supported language for the given preferences.
func Negotiate(prefs ...string) string {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	tag, _, _ := matcher.Match(tags...)
	base, _ := tag.Base()
	return base.String()
}
