package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	accessTokenCookie = "access_token"

	// cookieModeHeader lets browser clients ask for the token as an HttpOnly cookie
	cookieModeHeader = "X-Auth-Mode"
)

var (
	errMissingToken    = errors.New("missing access token")
	errMalformedHeader = errors.New("invalid authorization header format")
)

// ShouldUseCookies reports whether the client asked for cookie-based auth
func ShouldUseCookies(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(cookieModeHeader), "cookie")
}

// SetAccessTokenCookie stores the access token in an HttpOnly cookie
func SetAccessTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookies expires the access token cookie
func ClearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetAccessTokenFromCookie reads the access token cookie
func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(accessTokenCookie)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", http.ErrNoCookie
	}
	return c.Value, nil
}

// extractToken returns the bearer token from the Authorization header,
// falling back to the access token cookie
func extractToken(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errMalformedHeader
		}
		return token, nil
	}

	token, err := GetAccessTokenFromCookie(r)
	if err != nil {
		return "", errMissingToken
	}
	return token, nil
}
