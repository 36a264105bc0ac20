// Package view renders feedback for a terminal.
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/feedbackdesk/internal/feedback"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

// DateLayout is how submission dates are shown, in local time.
const DateLayout = "Jan 2, 2006 3:04 PM"

// Renderer writes feedback views to W.
type Renderer struct {
	W     io.Writer
	Color bool
}

func (r Renderer) colorize(color, text string) string {
	if !r.Color {
		return text
	}
	return color + text + colorReset
}

// Stars draws a five-star rating, filled up to rating.
func Stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > feedback.MaxRating {
		rating = feedback.MaxRating
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", feedback.MaxRating-rating)
}

// List renders every record. Admins also see the edit and delete actions.
func (r Renderer) List(records []feedback.Record, admin bool) {
	fmt.Fprintln(r.W, r.colorize(colorBold, "Recent Customer Feedback"))
	if len(records) == 0 {
		fmt.Fprintln(r.W, "No feedback submitted yet. Be the first!")
		return
	}
	for _, rec := range records {
		fmt.Fprintln(r.W)
		r.Item(rec, admin)
	}
}

// Item renders a single record.
func (r Renderer) Item(rec feedback.Record, admin bool) {
	fmt.Fprintf(r.W, "%s  %s\n", r.colorize(colorBold, rec.DisplayName()), r.colorize(colorYellow, Stars(rec.Rating)))
	fmt.Fprintf(r.W, "  %s\n", rec.Comments)
	if rec.Email != nil && *rec.Email != "" {
		fmt.Fprintf(r.W, "  %s\n", r.colorize(colorDim, *rec.Email))
	}
	fmt.Fprintf(r.W, "  %s\n", r.colorize(colorDim, "Submitted on: "+formatDate(rec.SubmissionDate)))
	if admin {
		fmt.Fprintf(r.W, "  %s %s\n",
			r.colorize(colorCyan, fmt.Sprintf("[edit %d]", rec.ID)),
			r.colorize(colorRed, fmt.Sprintf("[delete %d]", rec.ID)))
	}
}

// Aggregate renders the average rating, or N/A when it is unavailable.
func (r Renderer) Aggregate(avg float64, ok bool) {
	fmt.Fprintln(r.W, r.colorize(colorBold, "Overall Customer Satisfaction"))
	fmt.Fprintf(r.W, "Average Rating: %s %s\n", FormatAverage(avg, ok), r.colorize(colorYellow, "★"))
}

// FormatAverage formats an aggregate with one decimal.
func FormatAverage(avg float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", avg)
}

func formatDate(ts feedback.Timestamp) string {
	if ts.IsZero() {
		return "unknown"
	}
	return ts.Local().Format(DateLayout)
}
