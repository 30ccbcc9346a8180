// Package httpapi serves the shopauth engine over HTTP.
//
// Routes:
//
//	POST /auth/register          public
//	POST /auth/login             public
//	POST /auth/refresh           refresh cookie + CSRF
//	POST /auth/forgot-password   public
//	POST /auth/reset-password    public
//	POST /auth/logout            session + CSRF
//	POST /auth/logout-all        session + CSRF
//	POST /auth/change-password   session + CSRF
//	GET  /auth/sessions          session
//	GET  /healthz
//
// Tokens travel in HttpOnly cookies: the access token on path "/" and the
// refresh token on the refresh path only. Errors use the JSON envelope
// {"error": "...", "code": 401} with extra fields for validation failures,
// rate limits and lockouts.
package httpapi
