package transport

import "github.com/fastygo/classroom/domain"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string      `json:"name" validate:"notblank"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"min=6,max=72"`
	Role     domain.Role `json:"role" validate:"oneof=student teacher"`
}

// LoginResponse is the payload of POST /auth/login.
type LoginResponse struct {
	ID           string      `json:"_id"`
	Name         string      `json:"name"`
	Email        string      `json:"email,omitempty"`
	Role         domain.Role `json:"role"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh-token when the refresh token is held client-side.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResponse is the payload of POST /auth/refresh-token.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type CreateClassRequest struct {
	Title       string `json:"title" validate:"required,min=2"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
}

type JoinClassRequest struct {
	Code string `json:"code" validate:"required,max=20"`
}

type CreateAssignmentRequest struct {
	ClassID     string `json:"classId" validate:"required"`
	Title       string `json:"title" validate:"required,min=2"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

type UpdateAssignmentRequest struct {
	Title       string `json:"title" validate:"required,min=2"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

type SubmitAssignmentRequest struct {
	AssignmentID   string `json:"assignmentId" validate:"required"`
	SubmissionText string `json:"submissionText" validate:"notblank"`
	SubmissionFile string `json:"submissionFile,omitempty"`
}

type GradeRequest struct {
	Marks    int    `json:"marks" validate:"gte=0,lte=100"`
	Feedback string `json:"feedback,omitempty"`
}
