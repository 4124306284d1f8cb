package webui

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

const tokenTTL = 7 * 24 * time.Hour

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func (a *App) Signup() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || !strings.Contains(req.Email, "@") {
			return errorJSONMessage(c, http.StatusBadRequest, "A valid email is required")
		}
		if len(req.Password) < 8 {
			return errorJSONMessage(c, http.StatusBadRequest, "Password must be at least 8 characters")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user := models.User{
			Email:            req.Email,
			PasswordHash:     string(hash),
			SubscriptionTier: models.TierFree,
		}
		if err := a.config.DB.Create(&user).Error; err != nil {
			var existing models.User
			if a.config.DB.First(&existing, "email = ?", req.Email).Error == nil {
				return errorJSONMessage(c, http.StatusConflict, "Email already registered")
			}
			return err
		}

		token, err := a.issueToken(user.ID)
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(authResponse{Token: token, User: toUserPayload(&user)})
	}
}

func (a *App) Login() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		var user models.User
		if err := a.config.DB.First(&user, "email = ?", req.Email).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorJSONMessage(c, http.StatusUnauthorized, "Invalid email or password")
			}
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "Invalid email or password")
		}

		token, err := a.issueToken(user.ID)
		if err != nil {
			return err
		}
		return c.JSON(authResponse{Token: token, User: toUserPayload(&user)})
	}
}

func (a *App) issueToken(userID uuid.UUID) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   userID.String(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.config.JWTSecret)
}

func (a *App) parseToken(tokenStr string) (uuid.UUID, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.config.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	return uuid.Parse(claims.Subject)
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// RequireUser rejects unauthenticated requests and stores the caller's id
// in c.Locals("userID").
func (a *App) RequireUser() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return errorJSONMessage(c, http.StatusUnauthorized, "Missing bearer token")
		}

		userID, err := a.parseToken(tokenStr)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals("userID", userID.String())
		return c.Next()
	}
}

// OptionalUser populates c.Locals("userID") when a valid token is present
// and never rejects.
func (a *App) OptionalUser() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if tokenStr := bearerToken(c); tokenStr != "" {
			if userID, err := a.parseToken(tokenStr); err == nil {
				c.Locals("userID", userID.String())
			}
		}
		return c.Next()
	}
}

// currentUserID reads the id RequireUser stored. Handlers behind the
// middleware may assume it parses.
func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, ok := c.Locals("userID").(string)
	if !ok || raw == "" {
		return uuid.Nil, errors.New("user ID missing")
	}
	return uuid.Parse(raw)
}
