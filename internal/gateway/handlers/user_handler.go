package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"freshtrace-system/internal/auth"
	"freshtrace-system/internal/database/models"
	"freshtrace-system/internal/storage"
	"freshtrace-system/internal/utils"
)

type UserHandler struct {
	store     storage.Store
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *zap.Logger
}

func NewUserHandler(store storage.Store, jwtSecret []byte, tokenTTL time.Duration, log *zap.Logger) *UserHandler {
	return &UserHandler{store: store, jwtSecret: jwtSecret, tokenTTL: tokenTTL, log: log}
}

type registerRequest struct {
	Email         string  `json:"email" binding:"required,email"`
	Password      string  `json:"password" binding:"required,min=8"`
	Name          string  `json:"name" binding:"required"`
	Role          string  `json:"role" binding:"required"`
	Company       *string `json:"company"`
	WalletAddress *string `json:"wallet_address"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID      int64   `json:"id"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Role    string  `json:"role"`
	Company *string `json:"company,omitempty"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Company: u.Company}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !auth.ValidRole(auth.Role(req.Role)) {
		fail(c, http.StatusBadRequest, "Unknown role: "+req.Role)
		return
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		failErr(c, err)
		return
	}

	user := &models.User{
		Email:         req.Email,
		Password:      string(pwHash),
		Name:          req.Name,
		Role:          req.Role,
		Company:       req.Company,
		WalletAddress: req.WalletAddress,
		IsActive:      true,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			fail(c, http.StatusConflict, "Email already registered")
			return
		}
		failErr(c, err)
		return
	}

	token, exp, err := utils.GenerateToken(h.jwtSecret, user.ID, user.Email, user.Role, h.tokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}

	h.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	created(c, gin.H{
		"user":       toUserResponse(user),
		"token":      token,
		"expires_at": exp,
	})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !user.IsActive {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, exp, err := utils.GenerateToken(h.jwtSecret, user.ID, user.Email, user.Role, h.tokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{
		"user":       toUserResponse(user),
		"token":      token,
		"expires_at": exp,
	})
}

func (h *UserHandler) Me(c *gin.Context) {
	ident, ok := identity(c)
	if !ok {
		return
	}
	user, err := h.store.GetUserByID(c.Request.Context(), ident.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, toUserResponse(user))
}
