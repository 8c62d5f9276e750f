package apitest

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
)

func ref(u domain.User) domain.UserRef {
	return domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Server) canSeeClassLocked(c *domain.Class, user domain.User) bool {
	if c.Teacher.ID == user.ID {
		return true
	}
	for _, st := range c.Students {
		if st.ID == user.ID {
			return true
		}
	}
	return false
}

func (s *Server) myClasses(ctx *fasthttp.RequestCtx, user domain.User) {
	s.mu.Lock()
	out := make([]domain.Class, 0)
	for _, id := range s.classOrder {
		if c := s.classes[id]; s.canSeeClassLocked(c, user) {
			out = append(out, *c)
		}
	}
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Classes retrieved", out)
}

func (s *Server) getClass(ctx *fasthttp.RequestCtx, user domain.User) {
	s.mu.Lock()
	c, ok := s.classes[param(ctx, "id")]
	var out domain.Class
	if ok {
		out = *c
	}
	s.mu.Unlock()
	if !ok {
		s.fail(ctx, fasthttp.StatusNotFound, "Class not found")
		return
	}
	s.respond(ctx, fasthttp.StatusOK, "Class retrieved", out)
}

func (s *Server) createClass(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleTeacher {
		s.fail(ctx, fasthttp.StatusForbidden, "Only teachers can create classes")
		return
	}
	var req transport.CreateClassRequest
	if !decodeBody(ctx, &req) || len(req.Title) < 2 {
		s.fail(ctx, fasthttp.StatusBadRequest, "Class name must be at least 2 characters")
		return
	}

	c := &domain.Class{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Subject:     req.Subject,
		Description: req.Description,
		Code:        strings.ToUpper(uuid.NewString()[:6]),
		Teacher:     ref(user),
		CreatedAt:   nowString(),
	}
	s.mu.Lock()
	s.classes[c.ID] = c
	s.classOrder = append(s.classOrder, c.ID)
	out := *c
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusCreated, "Class created", out)
}

func (s *Server) joinClass(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleStudent {
		s.fail(ctx, fasthttp.StatusForbidden, "Only students can join classes")
		return
	}
	var req transport.JoinClassRequest
	if !decodeBody(ctx, &req) || req.Code == "" {
		s.fail(ctx, fasthttp.StatusBadRequest, "Class code is required")
		return
	}

	s.mu.Lock()
	var found *domain.Class
	for _, c := range s.classes {
		if c.Code == req.Code {
			found = c
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Class not found")
		return
	}
	if s.canSeeClassLocked(found, user) {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusConflict, "Already joined this class")
		return
	}
	found.Students = append(found.Students, ref(user))
	out := *found
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Joined class", out)
}

func (s *Server) assignmentsByClass(ctx *fasthttp.RequestCtx, user domain.User) {
	classID := param(ctx, "classId")
	s.mu.Lock()
	if _, ok := s.classes[classID]; !ok {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Class not found")
		return
	}
	out := make([]domain.Assignment, 0)
	for _, id := range s.assignOrder {
		if a := s.assignments[id]; a.ClassID == classID {
			out = append(out, *a)
		}
	}
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Assignments retrieved", out)
}

func (s *Server) getAssignment(ctx *fasthttp.RequestCtx, user domain.User) {
	s.mu.Lock()
	a, ok := s.assignments[param(ctx, "id")]
	var out domain.Assignment
	if ok {
		out = *a
	}
	s.mu.Unlock()
	if !ok {
		s.fail(ctx, fasthttp.StatusNotFound, "Assignment not found")
		return
	}
	s.respond(ctx, fasthttp.StatusOK, "Assignment retrieved", out)
}

func (s *Server) createAssignment(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleTeacher {
		s.fail(ctx, fasthttp.StatusForbidden, "Only teachers can create assignments")
		return
	}
	var req transport.CreateAssignmentRequest
	if !decodeBody(ctx, &req) || req.ClassID == "" || req.Title == "" {
		s.fail(ctx, fasthttp.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	c, ok := s.classes[req.ClassID]
	if !ok || c.Teacher.ID != user.ID {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Class not found")
		return
	}
	a := &domain.Assignment{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		ClassID:     req.ClassID,
		CreatedBy:   ref(user),
		CreatedAt:   nowString(),
	}
	s.assignments[a.ID] = a
	s.assignOrder = append(s.assignOrder, a.ID)
	out := *a
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusCreated, "Assignment created", out)
}

func (s *Server) updateAssignment(ctx *fasthttp.RequestCtx, user domain.User) {
	var req transport.UpdateAssignmentRequest
	if !decodeBody(ctx, &req) || req.Title == "" {
		s.fail(ctx, fasthttp.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	a, ok := s.assignments[param(ctx, "id")]
	if !ok || a.CreatedBy.ID != user.ID {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Assignment not found")
		return
	}
	a.Title = req.Title
	a.Description = req.Description
	a.DueDate = req.DueDate
	a.UpdatedAt = nowString()
	out := *a
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Assignment updated", out)
}

func (s *Server) submissionsByAssignment(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleTeacher {
		s.fail(ctx, fasthttp.StatusForbidden, "Only teachers can view submissions")
		return
	}
	assignmentID := param(ctx, "assignmentId")
	s.mu.Lock()
	out := make([]domain.Submission, 0)
	for _, id := range s.subOrder {
		if sub := s.submissions[id]; sub.AssignmentID == assignmentID {
			out = append(out, *sub)
		}
	}
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Submissions retrieved", out)
}

func (s *Server) findSubmissionLocked(assignmentID, studentID string) *domain.Submission {
	for _, id := range s.subOrder {
		sub := s.submissions[id]
		if sub.AssignmentID == assignmentID && sub.Student.ID == studentID {
			return sub
		}
	}
	return nil
}

func (s *Server) mySubmission(ctx *fasthttp.RequestCtx, user domain.User) {
	s.mu.Lock()
	sub := s.findSubmissionLocked(param(ctx, "assignmentId"), user.ID)
	var out domain.Submission
	if sub != nil {
		out = *sub
	}
	s.mu.Unlock()
	if sub == nil {
		s.fail(ctx, fasthttp.StatusNotFound, "Submission not found")
		return
	}
	s.respond(ctx, fasthttp.StatusOK, "Submission retrieved", out)
}

func (s *Server) submitAssignment(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleStudent {
		s.fail(ctx, fasthttp.StatusForbidden, "Only students can submit")
		return
	}
	var req transport.SubmitAssignmentRequest
	if !decodeBody(ctx, &req) || req.AssignmentID == "" {
		s.fail(ctx, fasthttp.StatusBadRequest, "invalid payload")
		return
	}

	s.mu.Lock()
	if _, ok := s.assignments[req.AssignmentID]; !ok {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Assignment not found")
		return
	}
	if s.findSubmissionLocked(req.AssignmentID, user.ID) != nil {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusConflict, "Assignment already submitted")
		return
	}
	sub := &domain.Submission{
		ID:             uuid.NewString(),
		SubmissionText: req.SubmissionText,
		SubmittedAt:    nowString(),
		Student:        ref(user),
		AssignmentID:   req.AssignmentID,
	}
	s.submissions[sub.ID] = sub
	s.subOrder = append(s.subOrder, sub.ID)
	out := *sub
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusCreated, "Assignment submitted", out)
}

func (s *Server) gradeSubmission(ctx *fasthttp.RequestCtx, user domain.User) {
	if user.Role != domain.RoleTeacher {
		s.fail(ctx, fasthttp.StatusForbidden, "Only teachers can grade")
		return
	}
	var req transport.GradeRequest
	if !decodeBody(ctx, &req) || req.Marks < 0 || req.Marks > 100 {
		s.fail(ctx, fasthttp.StatusBadRequest, "Marks must be between 0 and 100")
		return
	}

	s.mu.Lock()
	sub, ok := s.submissions[param(ctx, "id")]
	if !ok {
		s.mu.Unlock()
		s.fail(ctx, fasthttp.StatusNotFound, "Submission not found")
		return
	}
	marks := req.Marks
	sub.Marks = &marks
	sub.Feedback = req.Feedback
	out := *sub
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Submission graded", out)
}

func (s *Server) dashboard(ctx *fasthttp.RequestCtx, user domain.User) {
	s.mu.Lock()
	stats := domain.DashboardStats{}
	visible := make(map[string]bool)
	for id, c := range s.classes {
		if s.canSeeClassLocked(c, user) {
			visible[id] = true
			stats.Classes++
		}
	}
	now := time.Now()
	for _, a := range s.assignments {
		if !visible[a.ClassID] {
			continue
		}
		stats.Assignments++
		if due, err := time.Parse(time.RFC3339, a.DueDate); err == nil && due.After(now) {
			stats.Upcoming++
		} else if due, err := time.Parse("2006-01-02", a.DueDate); err == nil && due.After(now) {
			stats.Upcoming++
		}
	}
	s.mu.Unlock()
	s.respond(ctx, fasthttp.StatusOK, "Dashboard retrieved", stats)
}

// SeedClass creates a class with a fixed id and join code.
func (s *Server) SeedClass(id, title, code string, teacher domain.User, students ...domain.User) domain.Class {
	c := &domain.Class{
		ID:        id,
		Title:     title,
		Code:      code,
		Teacher:   ref(teacher),
		CreatedAt: nowString(),
	}
	for _, st := range students {
		c.Students = append(c.Students, ref(st))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
	s.classOrder = append(s.classOrder, c.ID)
	return *c
}
