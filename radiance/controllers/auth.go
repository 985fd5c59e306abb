// radiance/controllers/auth.go
package controllers

import (
	"context"
	"errors"
	"time"

	"radiance/radiance/config"
	"radiance/radiance/sources/psql/dao"
	"radiance/radiance/types"

	"github.com/golang-jwt/jwt/v5"
)

type AuthController struct {
	userDAO *dao.UserDAO
	cfg     config.Config
}

func NewAuthController(userDAO *dao.UserDAO, cfg config.Config) *AuthController {
	return &AuthController{
		userDAO: userDAO,
		cfg:     cfg,
	}
}

func (c *AuthController) Login(ctx context.Context, username string) (string, error) {
	user, err := c.userDAO.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		// Auto-create with dummy email
		email := username + "@example.com"
		user, err = c.userDAO.CreateUser(ctx, username, email, nil)
		if err != nil {
			return "", err
		}
	}
	return c.issueToken(user.ID)
}

func (c *AuthController) Register(ctx context.Context, req types.RegisterRequest) (string, error) {
	existing, err := c.userDAO.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", errors.New("username already taken")
	}
	user, err := c.userDAO.CreateUser(ctx, req.Username, req.Email, req.FullName)
	if err != nil {
		return "", err
	}
	return c.issueToken(user.ID)
}

func (c *AuthController) issueToken(userID int) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.cfg.JWTSecret))
}
