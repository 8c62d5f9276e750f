package domain

// User is the profile returned by registration and by the "who am I" endpoint.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UserRef is the compact user shape embedded in classes, assignments and submissions.
type UserRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
