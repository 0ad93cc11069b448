// Package auth issues dispatcher tokens and verifies HMAC-signed API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/arnavshah/capacity-scheduler-api/pkg/database"
)

var jwtAlgorithm = jwt.SigningMethodHS256

// TokenTTL is how long a dispatcher session lasts.
const TokenTTL = 12 * time.Hour

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidKey    = errors.New("invalid key format")
	ErrBadSignature  = errors.New("invalid signature")
	ErrMissingSecret = errors.New("signing secret is not configured")
)

// Claims identifies the dispatcher behind a request.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// The secrets are read on use so that a .env loaded after package init is
// still honoured.
func jwtSecret() []byte { return []byte(os.Getenv("JWT_SECRET")) }

func masterSecret() string { return os.Getenv("API_MASTER_SECRET") }

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateToken signs a dispatcher session token.
func CreateToken(username string) (string, error) {
	secret := jwtSecret()
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwtAlgorithm, claims).SignedString(secret)
}

// VerifyToken parses a session token and rejects any other signing method.
func VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, ErrInvalidToken
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// EnsureAdminExists seeds one dispatcher account from ADMIN_USERNAME and
// ADMIN_PASSWORD when the table is empty.
func EnsureAdminExists(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&database.MasterUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(&database.MasterUser{Username: username, PasswordHash: hash}).Error; err != nil {
		return err
	}
	log.Printf("Default dispatcher account created: %s", username)
	return nil
}

// SeedAdmin runs EnsureAdminExists for process startup. A failure is logged
// and reported as false; the server still starts without an admin account.
func SeedAdmin(ctx context.Context, db *gorm.DB) bool {
	if err := EnsureAdminExists(ctx, db); err != nil {
		log.Printf("could not ensure admin user: %v", err)
		return false
	}
	return true
}

func sign(secret, subject string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(subject))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateHMACKey creates a signed API key for a client name.
func GenerateHMACKey(name string) (string, error) {
	secret := masterSecret()
	if secret == "" {
		return "", ErrMissingSecret
	}
	return name + "." + sign(secret, name), nil
}

// VerifyHMACKey validates a key and returns the client name it was issued to.
func VerifyHMACKey(key string) (string, error) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", ErrInvalidKey
	}
	name, provided := key[:i], key[i+1:]

	secret := masterSecret()
	if secret == "" {
		return "", ErrMissingSecret
	}
	if !hmac.Equal([]byte(provided), []byte(sign(secret, name))) {
		return "", ErrBadSignature
	}
	return name, nil
}

// Preview masks a key for listings.
func Preview(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// TouchAPIKey loads or registers the record for a verified key and stamps its
// last use.
func TouchAPIKey(ctx context.Context, db *gorm.DB, key, name string) (*database.APIKey, error) {
	var apiKey database.APIKey
	err := db.WithContext(ctx).
		Where(database.APIKey{Key: key}).
		Attrs(database.APIKey{Name: name, KeyPreview: Preview(key), RateLimit: 10000}).
		FirstOrCreate(&apiKey).Error
	if err != nil {
		return nil, err
	}
	now := time.Now()
	apiKey.LastUsed = &now
	if err := db.WithContext(ctx).Model(&apiKey).Update("last_used", now).Error; err != nil {
		return nil, err
	}
	return &apiKey, nil
}
