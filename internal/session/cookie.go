package session

import (
	"net/http"
	"time"
)

const CookieName = "chat.sid"

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path   string
	Secure bool
	Domain string
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	return o
}

// SetCookie issues the session cookie. The browser keeps it for one TTL; the
// server-side sliding window is authoritative.
func SetCookie(w http.ResponseWriter, sessionID string, ttl time.Duration, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
