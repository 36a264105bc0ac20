package feedback

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names used as keys in FieldErrors.
const (
	FieldEmail    = "email"
	FieldRating   = "rating"
	FieldComments = "comments"
)

// User-facing validation messages.
const (
	MsgInvalidEmail   = "Please enter a valid email address."
	MsgSelectRating   = "Please select a rating."
	MsgRatingRange    = "Rating must be between 1 and 5."
	MsgCommentsEmpty  = "Comments cannot be empty."
	MsgCommentsLength = "Comments must be between 10 and 1000 characters."
)

// emailPattern treats Unicode space separators, vertical tab and BOM as
// whitespace along with ASCII \s.
var emailPattern = regexp.MustCompile(`^[^\s\v\p{Z}\x{FEFF}@]+@[^\s\v\p{Z}\x{FEFF}@]+\.[^\s\v\p{Z}\x{FEFF}@]+$`)

// FieldErrors maps a field name to its validation message.
type FieldErrors map[string]string

// Valid reports whether no field failed.
func (fe FieldErrors) Valid() bool { return len(fe) == 0 }

// CheckEmail validates an optional email address. Empty is valid.
func CheckEmail(email string) string {
	if email != "" && !emailPattern.MatchString(email) {
		return MsgInvalidEmail
	}
	return ""
}

// CheckRating validates a star rating, where 0 means nothing was selected.
func CheckRating(rating int) string {
	switch {
	case rating == 0:
		return MsgSelectRating
	case rating < MinRating || rating > MaxRating:
		return MsgRatingRange
	}
	return ""
}

// CheckComments validates the comment text after trimming surrounding whitespace.
func CheckComments(comments string) string {
	trimmed := strings.TrimSpace(comments)
	if trimmed == "" {
		return MsgCommentsEmpty
	}
	n := utf8.RuneCountInString(trimmed)
	if n < MinCommentsLength || n > MaxCommentsLength {
		return MsgCommentsLength
	}
	return ""
}

// Validate runs every field check and collects all failures.
func Validate(email string, rating int, comments string) FieldErrors {
	fe := FieldErrors{}
	if msg := CheckEmail(email); msg != "" {
		fe[FieldEmail] = msg
	}
	if msg := CheckRating(rating); msg != "" {
		fe[FieldRating] = msg
	}
	if msg := CheckComments(comments); msg != "" {
		fe[FieldComments] = msg
	}
	return fe
}
