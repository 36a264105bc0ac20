package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/feedbackdesk/internal/feedback"
	"github.com/kalambet/feedbackdesk/internal/storage"
)

// FeedbackRequest is the create and update body. Nil name, email or status
// on update keeps the stored value. Status is ignored on create.
type FeedbackRequest struct {
	CustomerName *string `json:"customerName" validate:"omitempty,max=255"`
	Email        *string `json:"email" validate:"omitempty,emailorempty"`
	Rating       *int    `json:"rating" validate:"required,min=1,max=5"`
	Comments     *string `json:"comments" validate:"required,notblank,min=10,max=1000"`
	Status       *string `json:"status" validate:"omitempty,oneof=PENDING REVIEWED ARCHIVED"`
}

// FeedbackResponse is a stored record with its review status.
type FeedbackResponse struct {
	feedback.Record
	Status string `json:"status"`
}

type fieldError struct {
	Field          string `json:"field"`
	DefaultMessage string `json:"defaultMessage"`
}

var fieldMessages = map[string]map[string]string{
	"email": {
		"emailorempty": "Email should be valid",
	},
	"status": {
		"oneof": "Status must be one of PENDING, REVIEWED, ARCHIVED",
	},
	"rating": {
		"required": "Rating cannot be null",
		"min":      "Rating must be at least 1",
		"max":      "Rating cannot be more than 5",
	},
	"comments": {
		"required": "Comments cannot be empty",
		"notblank": "Comments cannot be empty",
		"min":      "Comments must be between 10 and 1000 characters",
		"max":      "Comments must be between 10 and 1000 characters",
	},
	"customerName": {
		"max": "Customer name cannot be more than 255 characters",
	},
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// omitempty only skips nil pointers; an explicit "" email is allowed too.
	v.RegisterValidation("emailorempty", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || v.Var(s, "email") == nil
	})
	return v
}

// decodeFeedback reads and validates a request body. It writes the 400
// response itself and reports false on failure.
func decodeFeedback(w http.ResponseWriter, r *http.Request, v *validator.Validate) (FeedbackRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return FeedbackRequest{}, false
	}

	err := v.Struct(req)
	if err == nil {
		return req, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
		return FeedbackRequest{}, false
	}

	fields := make([]fieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()][fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		fields = append(fields, fieldError{Field: fe.Field(), DefaultMessage: msg})
		msgs = append(msgs, msg)
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": strings.Join(msgs, ", "),
		"errors":  fields,
	})
	return FeedbackRequest{}, false
}

func feedbackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid feedback id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

func notFound(w http.ResponseWriter, id int64) {
	httpError(w, http.StatusNotFound, "not_found", "Feedback not found with id %d", id)
}

func handleCreateFeedback(deps ServerDeps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeFeedback(w, r, v)
		if !ok {
			return
		}

		rec, err := deps.Store.CreateFeedback(feedback.Submission{
			CustomerName: req.CustomerName,
			Email:        req.Email,
			Rating:       *req.Rating,
			Comments:     *req.Comments,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save feedback: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, FeedbackResponse{Record: rec, Status: storage.StatusPending})
	}
}

func handleListFeedback(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Store.ListFeedback()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		statuses, err := deps.Store.FeedbackStatuses()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		out := make([]FeedbackResponse, len(records))
		for i, rec := range records {
			out[i] = FeedbackResponse{Record: rec, Status: statuses[rec.ID]}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetFeedback(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := feedbackID(w, r)
		if !ok {
			return
		}

		rec, err := deps.Store.GetFeedback(id)
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get feedback: %v", err)
			return
		}
		writeRecord(w, deps, rec)
	}
}

func handleUpdateFeedback(deps ServerDeps, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := feedbackID(w, r)
		if !ok {
			return
		}
		req, ok := decodeFeedback(w, r, v)
		if !ok {
			return
		}

		rec, err := deps.Store.UpdateFeedback(id, storage.Patch{
			CustomerName: req.CustomerName,
			Email:        req.Email,
			Rating:       req.Rating,
			Comments:     req.Comments,
			Status:       req.Status,
		})
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update feedback: %v", err)
			return
		}
		writeRecord(w, deps, rec)
	}
}

func writeRecord(w http.ResponseWriter, deps ServerDeps, rec feedback.Record) {
	status, err := deps.Store.FeedbackStatus(rec.ID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read feedback status: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Record: rec, Status: status})
}

func handleDeleteFeedback(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := feedbackID(w, r)
		if !ok {
			return
		}

		err := deps.Store.DeleteFeedback(id)
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete feedback: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAverageRating(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avg, err := deps.Store.AverageRating()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute average rating: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, avg)
	}
}
