package dto

type RegisterDTO struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileDTO is a partial update; omitted fields stay as they are.
type UpdateProfileDTO struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=50"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Avatar   *string `json:"avatar" binding:"omitempty,url"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

type UserStatusDTO struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type ForgotPasswordDTO struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordDTO struct {
	Password string `json:"password" binding:"required,min=8"`
}
