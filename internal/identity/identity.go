package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	idKey   = "id"
	nameKey = "name"

	guestPrefix = "guest_"
	guestName   = "Guest"
)

type Identity struct {
	ID      string
	Name    string
	IsGuest bool
}

func Guest() Identity {
	return Identity{
		ID:      guestPrefix + uuid.NewString(),
		Name:    guestName,
		IsGuest: true,
	}
}

// Verifier turns a bearer token into an Identity. An empty secret disables
// verification and every connection becomes a guest.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(tokenString string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	id, ok := claims[idKey].(string)
	if !ok || id == "" {
		return Identity{}, ErrInvalidToken
	}

	name, _ := claims[nameKey].(string)
	if name == "" {
		name = id
	}

	return Identity{ID: id, Name: name}, nil
}

// Resolve returns the identity carried by tokenString, falling back to a
// fresh guest when the token is absent or does not verify.
func (v *Verifier) Resolve(tokenString string) Identity {
	if tokenString == "" {
		return Guest()
	}

	id, err := v.Parse(tokenString)
	if err != nil {
		return Guest()
	}

	return id
}

// FromRequest reads the token from the "token" query parameter or the
// Authorization header.
func FromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}

// Sign mints an HS256 token for id. ttl <= 0 means no expiry.
func Sign(secret, id, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		idKey:   id,
		nameKey: name,
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}
