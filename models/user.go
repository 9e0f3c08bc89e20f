package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100;uniqueIndex;not null" json:"email" binding:"required"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('admin','guest');default:'guest'" json:"role"`
	Avatar    string    `gorm:"size:255" json:"avatar"`
	Address   string    `gorm:"type:text" json:"address"`
	Phone     string    `gorm:"size:20" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Role     UserRole `json:"role"`
	Avatar   string   `json:"avatar"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	if !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("email", "is not a valid email address")
	}
	if err := utils.ValidateUnique[User](ctx, "email", input.Email, 0); err != nil {
		return nil, err
	}
	if len(input.Password) < 8 {
		return nil, utils.NewValidationError("password", "must be at least 8 characters")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleGuest
	}

	user := User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashed),
		Role:     role,
		Avatar:   input.Avatar,
		Address:  input.Address,
		Phone:    input.Phone,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

func CheckUserPassword(ctx context.Context, email string, password string) (*User, error) {
	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, utils.NewValidationError("password", "is incorrect")
	}
	return user, nil
}
