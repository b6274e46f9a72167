package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/robalobadob/wolfsheep/internal/game"
)

// seatClaims identify a member and the seat reserved for it. A client
// presents them on reconnect to take its seat back.
type seatClaims struct {
	Session string    `json:"sid"`
	Member  string    `json:"mid"`
	Seat    game.Seat `json:"seat"`
	Name    string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func issueToken(secret []byte, ttl time.Duration, c seatClaims) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*seatClaims, error) {
	c := &seatClaims{}
	tok, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid || c.Session == "" || c.Member == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}
