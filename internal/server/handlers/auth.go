package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tablestack/internal/database/models"
	"tablestack/internal/utils"
)

type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type LoginRequest struct {
	Code string `json:"code" binding:"required"`
	PIN  string `json:"pin" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	var staff models.Staff
	if err := h.db.Where("code = ? AND is_active = true", req.Code).First(&staff).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PinHash), []byte(req.PIN)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
		return
	}

	token, exp, err := utils.GenerateToken(&staff, 12*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to issue token"})
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp,
		"staff": gin.H{
			"id":   staff.ID,
			"code": staff.Code,
			"name": staff.Name,
			"role": staff.Role,
		},
	})
}
