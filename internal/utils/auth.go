package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceTokenTTL is the lifetime of a local API token
const DeviceTokenTTL = 30 * 24 * time.Hour

// GenerateDeviceToken issues a token for a counting device on the local API
func GenerateDeviceToken(deviceID, role, secret string, ttl time.Duration) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id required")
	}
	if ttl <= 0 {
		ttl = DeviceTokenTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  deviceID,
		"role": role,
		"type": "device",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
