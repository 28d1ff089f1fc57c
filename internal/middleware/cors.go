package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSConfig restricts cross-origin access to the host-facing API. Origins
// come from configuration; the default covers local development.
func CORSConfig(allowedOrigins string) fiber.Handler {
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}

	return cors.New(cors.Config{
		// OWASP: Never use "*" in production with credentials
		AllowOrigins: allowedOrigins,

		// The API is GET and POST only
		AllowMethods: "GET,POST,OPTIONS",

		// OWASP: Whitelist only required headers
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",

		AllowCredentials: false,

		ExposeHeaders: "Content-Length,X-Request-ID",

		// Cache preflight requests (in seconds)
		MaxAge: 3600, // 1 hour
	})
}
