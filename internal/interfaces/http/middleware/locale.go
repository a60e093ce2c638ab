package middleware

import (
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/gin-gonic/gin"
)

// LangQuery overrides Accept-Language, e.g. ?lang=en
const LangQuery = "lang"

// Locale resolves the caller's language once per request. Notifications are
// written in it and the backend receives it as Accept-Language.
func Locale(catalog *notify.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.Query(LangQuery)
		if accept == "" {
			accept = c.GetHeader("Accept-Language")
		}
		tag := catalog.Match(accept)
		lang := tag.String()

		ctx := notify.WithLanguage(c.Request.Context(), lang)
		ctx = apiclient.WithAcceptLanguage(ctx, lang)
		c.Request = c.Request.WithContext(ctx)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

// Notifications attaches a collector to every request; handlers return its
// messages with the response
func Notifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := notify.WithCollector(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
