package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour // 7 days
	minPasswordLen   = 4
	claimRateWindow  = 60 * time.Second
	maxClaimAttempts = 10
)

// bcryptCost is lowered by tests
var bcryptCost = 12

var (
	ErrNameClaimed     = errors.New("that name is claimed, enter its password")
	ErrBadPassword     = errors.New("wrong password for that name")
	ErrShortPassword   = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrTooManyAttempts = errors.New("too many attempts, try again later")
	ErrNoClaims        = errors.New("name claims are disabled on this server")
)

// Auth guards claimed nicknames. A claimed name can only be taken with its
// password or a token issued for it.
type Auth struct {
	db        *DB
	jwtSecret []byte

	// Rate limiting for password attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler. db may be nil, which disables claims.
func NewAuth(db *DB) *Auth {
	secret := loadOrCreateSecret(db)
	return &Auth{
		db:        db,
		jwtSecret: secret,
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// ResolveName decides whether a player may use name. It returns the
// sanitized name and, when the name is claimed, a token for it.
//
// An unclaimed name without a password is free to use. A password on an
// unclaimed name claims it. A claimed name needs its password.
func (a *Auth) ResolveName(name, password, ip string) (string, string, error) {
	name, err := SanitizeName(name)
	if err != nil {
		return "", "", err
	}
	if a.db == nil {
		if password != "" {
			return "", "", ErrNoClaims
		}
		return name, "", nil
	}

	player, err := a.db.GetPlayerByName(name)
	if err != nil {
		return "", "", fmt.Errorf("database error")
	}

	if player == nil {
		if password == "" {
			return name, "", nil
		}
		return a.claim(name, password)
	}

	if password == "" {
		return "", "", ErrNameClaimed
	}
	if !a.checkRate(ip) {
		return "", "", ErrTooManyAttempts
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PassHash), []byte(password)); err != nil {
		return "", "", ErrBadPassword
	}
	token, err := a.generateToken(player.ID, player.Name)
	if err != nil {
		return "", "", fmt.Errorf("internal error")
	}
	return player.Name, token, nil
}

func (a *Auth) claim(name, password string) (string, string, error) {
	if len(password) < minPasswordLen {
		return "", "", ErrShortPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("internal error")
	}
	id, err := a.db.CreatePlayer(name, string(hash))
	if err != nil {
		return "", "", fmt.Errorf("failed to claim name")
	}
	token, err := a.generateToken(id, name)
	if err != nil {
		return "", "", fmt.Errorf("internal error")
	}
	return name, token, nil
}

// ValidateToken validates a JWT and returns (playerID, name, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("invalid token")
	}

	pidFloat, ok := claims["pid"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	name, ok := claims["usr"].(string)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}

	return int64(pidFloat), name, nil
}

func (a *Auth) generateToken(playerID int64, name string) (string, error) {
	claims := jwt.MapClaims{
		"pid": playerID,
		"usr": name,
		"exp": time.Now().Add(jwtExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(claimRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxClaimAttempts
}
