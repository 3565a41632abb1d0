// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package auth issues and validates the bearer tokens edges present when
// opening a session against the authoritative node.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth signs and validates HS256 session tokens.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates an authenticator over a shared secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Claims carries the edge identity. The source id names the device the
// subscription capability is scoped to.
type Claims struct {
	SourceID string `json:"sid"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for one edge source.
func (j *JWTAuth) GenerateToken(sourceID string, expiration time.Duration) (string, error) {
	claims := &Claims{
		SourceID: sourceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "sqlworker",
			Subject:   sourceID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and verifies a token, returning its claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.SourceID == "" {
		return nil, fmt.Errorf("token missing source id")
	}
	return claims, nil
}

// SourceIDFromRequest extracts and validates the bearer token on an
// incoming HTTP request.
func (j *JWTAuth) SourceIDFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", fmt.Errorf("Authorization header must use Bearer scheme")
	}
	claims, err := j.ValidateToken(raw)
	if err != nil {
		return "", err
	}
	return claims.SourceID, nil
}
