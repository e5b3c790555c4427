package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"openlms/internal/apierr"
	"openlms/internal/domain"
	"openlms/internal/query"
	"openlms/internal/repo"
)

func requireCapability(ctx context.Context, capability string) huma.StatusError {
	id := identityFromContext(ctx)
	if !id.Authenticated {
		return handleError(apierr.Unauthorized(""))
	}
	if !id.Can(capability) {
		return handleError(apierr.Forbidden(capability))
	}
	return nil
}

type CreateStudentRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func registerStudents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-student",
		Method:        http.MethodPost,
		Path:          "/students",
		Summary:       "Create student",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateStudentRequest `json:"body"`
	}) (*struct {
		Body domain.Student `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "student.create"); serr != nil {
			return nil, serr
		}
		if input.Body.Email == "" {
			return nil, handleError(apierr.MissingParameter("email"))
		}
		s, err := cfg.Repo.InsertStudent(ctx, domain.Student{Email: input.Body.Email, Name: input.Body.Name})
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body domain.Student `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-students",
		Method:      http.MethodGet,
		Path:        "/students",
		Summary:     "List students",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Student `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "student.read"); serr != nil {
			return nil, serr
		}
		items, err := cfg.Repo.ListStudents(ctx)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body []domain.Student `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-student",
		Method:      http.MethodGet,
		Path:        "/students/{id}",
		Summary:     "Get student",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Student `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "student.read"); serr != nil {
			return nil, serr
		}
		s, err := cfg.Repo.GetStudent(ctx, input.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d not found", input.ID)))
		}
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body domain.Student `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-student",
		Method:      http.MethodDelete,
		Path:        "/students/{id}",
		Summary:     "Delete student",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if serr := requireCapability(ctx, "student.delete"); serr != nil {
			return nil, serr
		}
		err := cfg.Repo.DeleteStudent(ctx, input.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d not found", input.ID)))
		}
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct{}{}, nil
	})
}

func validEnrollmentStatus(s string) bool {
	switch s {
	case domain.EnrollmentEnrolled, domain.EnrollmentExpired, domain.EnrollmentCancelled:
		return true
	}
	return false
}

type listEnrollmentsInput struct {
	StudentID int64  `path:"id"`
	Post      int64  `query:"post"`
	Status    string `query:"status"`
	Page      int    `query:"page"`
	PerPage   int    `query:"per_page"`
	Order     string `query:"order"`
	OrderBy   string `query:"orderby"`
}

type listEnrollmentsOutput struct {
	Total      string `header:"X-WP-Total"`
	TotalPages string `header:"X-WP-TotalPages"`
	Link       string `header:"Link"`
	Body       []domain.Enrollment
}

type UpdateEnrollmentRequest struct {
	Status  string `json:"status"`
	Trigger string `json:"trigger,omitempty"`
}

func registerEnrollments(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-student-enrollments",
		Method:      http.MethodGet,
		Path:        "/students/{id}/enrollments",
		Summary:     "List a student's enrollments",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *listEnrollmentsInput) (*listEnrollmentsOutput, error) {
		if serr := requireCapability(ctx, "enrollment.read"); serr != nil {
			return nil, serr
		}
		f := repo.EnrollmentFilters{
			StudentID: input.StudentID,
			PostID:    input.Post,
			Status:    input.Status,
			Page:      input.Page,
			PerPage:   input.PerPage,
			Order:     input.Order,
			OrderBy:   input.OrderBy,
		}
		if f.Status != "" && !validEnrollmentStatus(f.Status) {
			return nil, handleError(apierr.InvalidParameter("status", "must be enrolled, expired or cancelled"))
		}
		switch f.OrderBy {
		case "", "date_updated", "date_created":
		default:
			return nil, handleError(apierr.InvalidParameter("orderby", "must be date_updated or date_created"))
		}
		switch f.Order {
		case "", "asc", "desc":
		default:
			return nil, handleError(apierr.InvalidParameter("order", "must be asc or desc"))
		}
		limits := cfg.Limits.WithDefaults()
		if f.Page == 0 {
			f.Page = 1
		}
		if f.PerPage == 0 {
			f.PerPage = limits.PerPage
		}
		if f.Page < 1 {
			return nil, handleError(apierr.InvalidParameter("page", "must be a positive integer"))
		}
		if f.PerPage < 1 || f.PerPage > limits.MaxPerPage {
			return nil, handleError(apierr.InvalidParameter("per_page", fmt.Sprintf("must be between 1 and %d", limits.MaxPerPage)))
		}
		items, total, err := cfg.Repo.CurrentEnrollments(ctx, f)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		// An empty pair set is a missing collection, unlike the generic
		// resource lists where an empty page is a 200.
		if total == 0 {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d has no enrollments", input.StudentID)))
		}
		meta, aerr := query.Paginate(query.Descriptor{Page: f.Page, PerPage: f.PerPage}, total)
		if aerr != nil {
			return nil, handleError(aerr)
		}
		out := &listEnrollmentsOutput{
			Total:      strconv.Itoa(meta.Total),
			TotalPages: strconv.Itoa(meta.TotalPages),
			Body:       items,
		}
		if req := requestFromContext(ctx); req != nil {
			out.Link = query.FormatLinkHeader(query.Links(req.URL.Path, req.URL.Query(), f.Page, meta.TotalPages))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-enrollment",
		Method:      http.MethodGet,
		Path:        "/students/{id}/enrollments/{post_id}",
		Summary:     "Get one enrollment",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StudentID int64 `path:"id"`
		PostID    int64 `path:"post_id"`
	}) (*struct {
		Body domain.Enrollment `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "enrollment.read"); serr != nil {
			return nil, serr
		}
		en, err := cfg.Repo.GetEnrollment(ctx, input.StudentID, input.PostID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d is not enrolled in %d", input.StudentID, input.PostID)))
		}
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body domain.Enrollment `json:"body"`
		}{Body: en}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-enrollment",
		Method:        http.MethodPost,
		Path:          "/students/{id}/enrollments/{post_id}",
		Summary:       "Enroll a student",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StudentID int64                    `path:"id"`
		PostID    int64                    `path:"post_id"`
		Body      *UpdateEnrollmentRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body domain.Enrollment `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "enrollment.create"); serr != nil {
			return nil, serr
		}
		if _, err := cfg.Repo.GetStudent(ctx, input.StudentID); errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d not found", input.StudentID)))
		} else if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		status := ""
		trigger := ""
		if input.Body != nil {
			status = input.Body.Status
			trigger = input.Body.Trigger
		}
		if status == "" {
			status = domain.EnrollmentEnrolled
		}
		if !validEnrollmentStatus(status) {
			return nil, handleError(apierr.InvalidParameter("status", "must be enrolled, expired or cancelled"))
		}
		if trigger == "" {
			trigger = "admin_" + identityFromContext(ctx).Subject
		}
		// Two appended rows: the status row is authoritative, the trigger row
		// records provenance.
		if _, err := cfg.Repo.AppendEnrollmentEvent(ctx, input.StudentID, input.PostID, domain.EnrollmentStatusKey, status); err != nil {
			return nil, handleError(apierr.Server(err))
		}
		if _, err := cfg.Repo.AppendEnrollmentEvent(ctx, input.StudentID, input.PostID, domain.EnrollmentTriggerKey, trigger); err != nil {
			return nil, handleError(apierr.Server(err))
		}
		appendEnrollmentActivity(ctx, cfg, "enrollment.created", input.StudentID, input.PostID)
		en, err := cfg.Repo.GetEnrollment(ctx, input.StudentID, input.PostID)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body domain.Enrollment `json:"body"`
		}{Body: en}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-enrollment",
		Method:      http.MethodPatch,
		Path:        "/students/{id}/enrollments/{post_id}",
		Summary:     "Update an enrollment's status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StudentID int64                   `path:"id"`
		PostID    int64                   `path:"post_id"`
		Body      UpdateEnrollmentRequest `json:"body"`
	}) (*struct {
		Body domain.Enrollment `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "enrollment.update"); serr != nil {
			return nil, serr
		}
		if input.Body.Status == "" {
			return nil, handleError(apierr.MissingParameter("status"))
		}
		if !validEnrollmentStatus(input.Body.Status) {
			return nil, handleError(apierr.InvalidParameter("status", "must be enrolled, expired or cancelled"))
		}
		if _, err := cfg.Repo.GetEnrollment(ctx, input.StudentID, input.PostID); errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d is not enrolled in %d", input.StudentID, input.PostID)))
		} else if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		// The log is append-only; the new row supersedes by recency.
		if _, err := cfg.Repo.AppendEnrollmentEvent(ctx, input.StudentID, input.PostID, domain.EnrollmentStatusKey, input.Body.Status); err != nil {
			return nil, handleError(apierr.Server(err))
		}
		appendEnrollmentActivity(ctx, cfg, "enrollment.updated", input.StudentID, input.PostID)
		en, err := cfg.Repo.GetEnrollment(ctx, input.StudentID, input.PostID)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body domain.Enrollment `json:"body"`
		}{Body: en}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-enrollment",
		Method:      http.MethodDelete,
		Path:        "/students/{id}/enrollments/{post_id}",
		Summary:     "Delete an enrollment",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StudentID int64 `path:"id"`
		PostID    int64 `path:"post_id"`
	}) (*struct{}, error) {
		if serr := requireCapability(ctx, "enrollment.delete"); serr != nil {
			return nil, serr
		}
		err := cfg.Repo.DeleteEnrollment(ctx, input.StudentID, input.PostID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound(fmt.Sprintf("student %d is not enrolled in %d", input.StudentID, input.PostID)))
		}
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		appendEnrollmentActivity(ctx, cfg, "enrollment.deleted", input.StudentID, input.PostID)
		return &struct{}{}, nil
	})
}

func appendEnrollmentActivity(ctx context.Context, cfg Config, evtType string, studentID, postID int64) {
	if cfg.Events == nil {
		return
	}
	_ = cfg.Events.Append(ctx, evtType, "enrollment", fmt.Sprintf("%d:%d", studentID, postID), identityFromContext(ctx).Subject, nil)
}
