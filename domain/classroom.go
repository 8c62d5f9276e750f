package domain

// Class is a teacher-owned group students join by code.
type Class struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject,omitempty"`
	Description string    `json:"description,omitempty"`
	Code        string    `json:"code"`
	Teacher     UserRef   `json:"teacher"`
	Students    []UserRef `json:"students,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	UpdatedAt   string    `json:"updatedAt,omitempty"`
}

// Assignment belongs to a class.
type Assignment struct {
	ID           string         `json:"_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	DueDate      string         `json:"dueDate,omitempty"`
	ClassID      string         `json:"classId"`
	CreatedBy    UserRef        `json:"createdBy"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	UpdatedAt    string         `json:"updatedAt,omitempty"`
	MySubmission *SubmissionRef `json:"mySubmission,omitempty"`
}

// SubmissionRef is the student's own submission summary embedded in an assignment.
type SubmissionRef struct {
	ID             string `json:"_id"`
	SubmissionText string `json:"submissionText"`
	SubmittedAt    string `json:"submittedAt"`
	Marks          *int   `json:"marks,omitempty"`
}

// Submission is a student's answer to an assignment.
type Submission struct {
	ID             string  `json:"_id"`
	SubmissionText string  `json:"submissionText"`
	SubmittedAt    string  `json:"submittedAt"`
	Student        UserRef `json:"studentId"`
	Marks          *int    `json:"marks,omitempty"`
	Feedback       string  `json:"feedback,omitempty"`
	AssignmentID   string  `json:"assignmentId,omitempty"`
}

// IsGraded reports whether marks were recorded.
func (s *Submission) IsGraded() bool {
	return s != nil && s.Marks != nil
}

// DashboardStats holds the per-user counters shown on the dashboard.
type DashboardStats struct {
	Classes     int `json:"classes"`
	Assignments int `json:"assignments"`
	Upcoming    int `json:"upcoming"`
}
