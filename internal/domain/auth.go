package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка операторского токена.
// Subject используется как actor при подтверждении/разрешении инцидентов.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "incidents.write": true
	jwt.RegisteredClaims
}
