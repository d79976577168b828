package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohamedazimal27/rag-docmind/internal/app"
	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/response"
)

// Authenticator issues tokens and resolves the current account.
type Authenticator interface {
	Register(input app.RegisterInput) (*app.AuthResult, error)
	Login(input app.LoginInput) (*app.AuthResult, error)
	GetUserByID(id uint) (*model.User, error)
}

var authErrorRules = []errorRule{
	{target: app.ErrInvalidInput, status: http.StatusBadRequest, code: response.CodeBadRequest},
	{target: app.ErrUsernameExists, status: http.StatusConflict, code: response.CodeUsernameExists},
	{target: app.ErrEmailExists, status: http.StatusConflict, code: response.CodeEmailExists},
	{target: app.ErrInvalidCredential, status: http.StatusUnauthorized, code: response.CodeInvalidCredentials},
}

type AuthHandler struct {
	auth Authenticator
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required"`
}

type accountView struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type sessionView struct {
	Token string      `json:"token"`
	User  accountView `json:"user"`
}

func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register creates an account and its data directory, then signs the user in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.auth.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	h.respondSession(c, result, err, "register failed")
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.auth.Login(app.LoginInput{Username: req.Username, Password: req.Password})
	h.respondSession(c, result, err, "login failed")
}

func (h *AuthHandler) respondSession(c *gin.Context, result *app.AuthResult, err error, fallback string) {
	if err != nil {
		writeError(c, err, authErrorRules, fallback)
		return
	}
	response.OK(c, sessionView{Token: result.Token, User: newAccountView(result.User)})
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	user, err := h.auth.GetUserByID(userID)
	switch {
	case err != nil:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch current user failed")
	case user == nil:
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
	default:
		response.OK(c, newAccountView(user))
	}
}

func newAccountView(u *model.User) accountView {
	return accountView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
