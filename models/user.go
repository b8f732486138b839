package models

import (
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex" binding:"required" json:"username"`
	Password string `binding:"required" json:"password"`
}
