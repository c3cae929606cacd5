package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"tablestack/internal/database/models"
)

var jwtSecret []byte

// SetSecret installs the signing key at startup.
func SetSecret(secret string) {
	jwtSecret = []byte(secret)
}

type Claims struct {
	StaffID uint             `json:"staff_id"`
	Code    string           `json:"code"`
	Role    models.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(staff *models.Staff, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims := &Claims{
		StaffID: staff.ID,
		Code:    staff.Code,
		Role:    staff.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   staff.Code,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(jwtSecret)
	return s, exp, err
}

func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
