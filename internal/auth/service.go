package auth

import (
	"strings"
	"time"

	"stockdesk-backend/internal/pkg/constants"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the already-authenticated identity handed to every mutating call.
type Actor struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
	Name  string `json:"fullname"`
	Role  string `json:"role"`
}

// Privileged reports whether the actor may override someone else's hold.
func (a Actor) Privileged() bool {
	return constants.IsPrivileged(a.Role)
}

// Label is the display name stored next to holder ids.
func (a Actor) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return a.ID
	}
}

// Matches reports whether handle names this actor (id, email or name, case-insensitive).
func (a Actor) Matches(handle string) bool {
	h := strings.ToLower(strings.TrimSpace(handle))
	if h == "" {
		return false
	}
	for _, v := range []string{a.ID, a.Email, a.Name} {
		if v != "" && strings.ToLower(v) == h {
			return true
		}
	}
	return false
}

// VerifyUser validates a session user map (as stored by the auth collaborator) and returns the actor.
func VerifyUser(sessionUser interface{}) (*Actor, error) {
	if sessionUser == nil {
		return nil, ErrNotAuthenticated
	}
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, ErrNotAuthenticated
	}
	userID, _ := m["user_id"].(string)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	out := &Actor{
		ID:    userID,
		Name:  str(m["fullname"]),
		Email: str(m["email"]),
		Role:  str(m["role"]),
	}
	if !constants.IsValidRole(out.Role) {
		return nil, ErrUnknownRole
	}
	return out, nil
}

// ParseToken verifies an HS256 identity token and returns the actor it names.
func ParseToken(secret []byte, raw string) (*Actor, error) {
	if len(secret) == 0 || raw == "" {
		return nil, ErrNotAuthenticated
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, ErrInvalidToken
	}
	out := &Actor{
		ID:    sub,
		Email: str(claims["email"]),
		Name:  str(claims["name"]),
		Role:  str(claims["role"]),
	}
	if !constants.IsValidRole(out.Role) {
		return nil, ErrUnknownRole
	}
	return out, nil
}

// MintToken signs an identity token for actor. The auth collaborator and tests use it.
func MintToken(secret []byte, actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   actor.ID,
		"email": actor.Email,
		"name":  actor.Name,
		"role":  actor.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// SessionMap is the inverse of VerifyUser.
func SessionMap(a Actor) map[string]interface{} {
	return map[string]interface{}{
		"user_id":  a.ID,
		"fullname": a.Name,
		"email":    a.Email,
		"role":     a.Role,
	}
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
