package main

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const (
	tokenExpiry     = 7 * 24 * time.Hour
	secretSettingID = "jwt_secret"
)

// Identity is a durable player identity carried by a signed token
type Identity struct {
	ExternalID string
	Name       string
}

// TokenVerifier checks HMAC signed identity tokens. Claims are "pid" (the
// external id) and "usr" (display name).
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier uses secret, or the secret stored in db, or a fresh one
// that is then stored in db
func NewTokenVerifier(secret string, db *DB) *TokenVerifier {
	if secret != "" {
		return &TokenVerifier{secret: []byte(secret)}
	}
	return &TokenVerifier{secret: loadOrCreateSecret(db)}
}

func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h, err := db.GetSetting(secretSettingID); err == nil && h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate token secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(secretSettingID, hex.EncodeToString(secret)); err != nil {
			log.Warn().Err(err).Msg("could not persist token secret")
		}
	}
	return secret
}

// Verify validates token and returns its identity
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Wrapf(ErrInvalidToken, "unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, eris.Wrap(err, "parsing identity token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	var id string
	switch pid := claims["pid"].(type) {
	case string:
		id = pid
	case float64:
		id = strconv.FormatInt(int64(pid), 10)
	}
	if id == "" {
		return Identity{}, eris.Wrap(ErrInvalidToken, "missing pid claim")
	}
	name, _ := claims["usr"].(string)
	return Identity{ExternalID: id, Name: name}, nil
}

// Issue signs a token for identity
func (v *TokenVerifier) Issue(identity Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"pid": identity.ExternalID,
		"usr": identity.Name,
		"exp": now.Add(tokenExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", eris.Wrap(err, "signing identity token")
	}
	return signed, nil
}

// issueToken signs a token for "id:name" or just "id"
func issueToken(v *TokenVerifier, arg string) (string, error) {
	id, name, _ := strings.Cut(arg, ":")
	if id == "" {
		return "", eris.Wrap(ErrInvalidToken, "empty external id")
	}
	return v.Issue(Identity{ExternalID: id, Name: name})
}
