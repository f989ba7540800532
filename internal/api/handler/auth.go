package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"strangerchat/backend/internal/config"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer    = "strangerchat-service"
	participantKey = "participant_id"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload of an anonymous participant token.
type Claims struct {
	ParticipantID string `json:"participant_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 participant tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: config.TokenTTL, now: time.Now}
}

func (t *TokenIssuer) Issue(participantID string) (string, error) {
	now := t.now()
	claims := Claims{
		ParticipantID: participantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates the token and returns the participant id it carries.
func (t *TokenIssuer) Parse(tokenString string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if claims.ParticipantID == "" {
		return "", ErrInvalidToken
	}
	return claims.ParticipantID, nil
}

// RequireParticipant authenticates the request from the Authorization
// header or, for browser WebSocket upgrades, the token query parameter.
func (h *Handler) RequireParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
			return
		}

		id, err := h.Tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		c.Set(participantKey, id)
		c.Next()
	}
}

func participantID(c *gin.Context) string {
	return c.GetString(participantKey)
}

// CreateParticipant issues a fresh anonymous identity and its token.
func (h *Handler) CreateParticipant(c *gin.Context) {
	p, err := h.Hub.Storage.CreateParticipant(c.Request.Context())
	if err != nil {
		h.abort(c, err)
		return
	}

	token, err := h.Tokens.Issue(p.ID)
	if err != nil {
		h.Logger.Error("token signing failed", "participant", p.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"participant_id": p.ID, "token": token})
}
