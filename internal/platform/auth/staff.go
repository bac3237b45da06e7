package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	// SessionCookie carries the signed staff session token.
	SessionCookie = "carepilot_session"

	loginWindow      = time.Minute
	maxLoginAttempts = 5
)

// Staff issues and validates signed staff session cookies and guards
// the login endpoint with a per-IP attempt limit.
type Staff struct {
	secret   []byte
	password string
	ttl      time.Duration
	secure   bool
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewStaff(secret, password string, ttl time.Duration, secure bool) *Staff {
	return &Staff{
		secret:   []byte(secret),
		password: password,
		ttl:      ttl,
		secure:   secure,
		now:      time.Now,
		attempts: make(map[string][]time.Time),
	}
}

func (s *Staff) RegisterRoutes(g *echo.Group) {
	g.POST("/staff/login", s.Login)
	g.POST("/staff/logout", s.Logout)
	g.GET("/staff/session", s.Session)
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

// Login checks the shared staff password and sets the session cookie.
// Each IP gets maxLoginAttempts tries per loginWindow; further tries
// are answered 429 regardless of the password.
func (s *Staff) Login(c echo.Context) error {
	ip := c.RealIP()
	if !s.allowAttempt(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts. Try again shortly.")
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.password)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "Incorrect password.")
	}

	token, expires, err := s.issueToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session setup failed")
	}
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *Staff) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Session reports whether the request carries a valid staff session.
func (s *Staff) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": s.validRequest(c)})
}

// RequireStaff rejects requests without a valid session cookie.
func (s *Staff) RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.validRequest(c) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Staff login required.")
		}
		return next(c)
	}
}

func (s *Staff) issueToken() (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   "staff",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires, nil
}

func (s *Staff) validRequest(c echo.Context) bool {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	return s.validToken(cookie.Value)
}

func (s *Staff) validToken(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Subject == "staff"
}

func (s *Staff) allowAttempt(ip string) bool {
	now := s.now()
	cutoff := now.Add(-loginWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.attempts[ip][:0]
	for _, ts := range s.attempts[ip] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= maxLoginAttempts {
		s.attempts[ip] = recent
		return false
	}
	s.attempts[ip] = append(recent, now)
	return true
}
