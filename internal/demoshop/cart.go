// internal/demoshop/cart.go
package demoshop

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cartCookieName = "trolley_cart"
	cartTokenTTL   = 24 * time.Hour
)

// cartClaims carries the cart contents inside a signed cookie, so the shop
// itself stays stateless across restarts.
type cartClaims struct {
	// Items maps product ID to quantity.
	Items map[string]int `json:"items"`
	jwt.RegisteredClaims
}

// cartCodec signs and verifies cart cookies with HS256.
type cartCodec struct {
	secret []byte
}

// decode returns the cart from the request's cookie. A missing, expired or
// tampered cookie yields an empty cart rather than an error; the shop never
// refuses service over cart state.
func (cc cartCodec) decode(r *http.Request) map[string]int {
	cookie, err := r.Cookie(cartCookieName)
	if err != nil {
		return map[string]int{}
	}

	claims := &cartClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return cc.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Items == nil {
		return map[string]int{}
	}
	return claims.Items
}

// encode signs the cart and sets it as a cookie on the response.
func (cc cartCodec) encode(w http.ResponseWriter, items map[string]int) error {
	now := time.Now()
	claims := &cartClaims{
		Items: items,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cartTokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cc.secret)
	if err != nil {
		return fmt.Errorf("failed to sign cart token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cartCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// clear drops the cart cookie.
func (cc cartCodec) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   cartCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// cartCount sums the quantities in a cart.
func cartCount(items map[string]int) int {
	total := 0
	for _, qty := range items {
		total += qty
	}
	return total
}
