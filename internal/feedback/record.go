package feedback

import (
	"strings"
)

// Rating and comment bounds shared by the client form and the reference API.
const (
	MinRating         = 1
	MaxRating         = 5
	MinCommentsLength = 10
	MaxCommentsLength = 1000
)

// Record is a stored feedback entry as returned by the API.
type Record struct {
	ID             int64     `json:"id"`
	CustomerName   *string   `json:"customerName"`
	Email          *string   `json:"email"`
	Rating         int       `json:"rating"`
	Comments       string    `json:"comments"`
	SubmissionDate Timestamp `json:"submissionDate"`
}

// DisplayName returns the customer name, or "Anonymous" when none was given.
func (r Record) DisplayName() string {
	if r.CustomerName == nil || strings.TrimSpace(*r.CustomerName) == "" {
		return "Anonymous"
	}
	return *r.CustomerName
}

// Submission is the create/update request body.
type Submission struct {
	CustomerName *string `json:"customerName"`
	Email        *string `json:"email"`
	Rating       int     `json:"rating"`
	Comments     string  `json:"comments"`
}

// Optional returns nil for an empty string so it is sent as JSON null.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional string, returning "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
