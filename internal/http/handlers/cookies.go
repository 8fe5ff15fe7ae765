package handlers

import (
	"net/http"
	"time"

	"github.com/diagnosis/palms-parking/pkg/auth"
	"github.com/diagnosis/palms-parking/pkg/config"
)

// Cookies issues and reads the signed cookie that names a browser client.
type Cookies struct {
	Name   string
	Secret string
	TTL    time.Duration
	Secure bool
}

func CookiesFromConfig(cfg *config.Config) Cookies {
	return Cookies{
		Name:   cfg.Session.CookieName,
		Secret: cfg.Auth.CookieSecret,
		TTL:    cfg.Session.Retention,
		Secure: cfg.Session.Secure,
	}
}

// ClientID returns the client named by the request cookie, or "" when there
// is no valid cookie.
func (c Cookies) ClientID(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil || ck.Value == "" {
		return ""
	}
	claims, err := auth.Parse(ck.Value, c.Secret)
	if err != nil {
		return ""
	}
	return claims.ClientID()
}

func (c Cookies) Issue(w http.ResponseWriter, clientID string) error {
	token, err := auth.NewClientToken(clientID, c.Secret, c.TTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
