package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"openlms/internal/domain"
)

// EnrollmentFilters narrow the (student, post) pair set of the latest-state
// query. Filters apply before the max-timestamp selection so pagination
// totals stay correct.
type EnrollmentFilters struct {
	StudentID int64
	PostID    int64
	Status    string
	Page      int
	PerPage   int
	Order     string
	OrderBy   string
}

// AppendEnrollmentEvent appends one row to the enrollment log. The log is
// append-only: a status change is a new row, never an update.
func (r Repo) AppendEnrollmentEvent(ctx context.Context, studentID, postID int64, key, value string) (domain.EnrollmentEvent, error) {
	evt := domain.EnrollmentEvent{
		StudentID: studentID,
		PostID:    postID,
		Key:       key,
		Value:     value,
		UpdatedAt: r.now(),
	}
	out, err := r.DB.ExecContext(ctx, `INSERT INTO enrollment_events(student_id,post_id,key,value,updated_at) VALUES (?,?,?,?,?)`,
		evt.StudentID, evt.PostID, evt.Key, evt.Value, evt.UpdatedAt)
	if err != nil {
		return domain.EnrollmentEvent{}, err
	}
	evt.ID, err = out.LastInsertId()
	return evt, err
}

const enrollmentSelect = `
SELECT e.student_id, e.post_id, e.value,
       (SELECT MIN(f.updated_at) FROM enrollment_events f
         WHERE f.student_id=e.student_id AND f.post_id=e.post_id AND f.key=e.key) AS date_created,
       e.updated_at AS date_updated`

// latestRowCondition pins each (student, post) group to its single most
// recent row: maximum timestamp, ties broken by the largest row id.
const latestRowCondition = `e.id=(SELECT m.id FROM enrollment_events m
  WHERE m.student_id=e.student_id AND m.post_id=e.post_id AND m.key=e.key
  ORDER BY m.updated_at DESC, m.id DESC LIMIT 1)`

func enrollmentWhere(f EnrollmentFilters) (string, []any) {
	clauses := []string{"e.key=?", latestRowCondition}
	args := []any{domain.EnrollmentStatusKey}
	if f.StudentID > 0 {
		clauses = append(clauses, "e.student_id=?")
		args = append(args, f.StudentID)
	}
	if f.PostID > 0 {
		clauses = append(clauses, "e.post_id=?")
		args = append(args, f.PostID)
	}
	if f.Status != "" {
		clauses = append(clauses, "e.value=?")
		args = append(args, f.Status)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// CurrentEnrollments computes the latest status per (student, post) pair and
// returns the requested page plus the total pair count. It follows the same
// two-count rule as the generic collection query: when the bounded query
// reports zero rows for a page past the first, the count is re-run without
// the limit.
func (r Repo) CurrentEnrollments(ctx context.Context, f EnrollmentFilters) ([]domain.Enrollment, int, error) {
	where, args := enrollmentWhere(f)
	orderCol := "date_updated"
	if f.OrderBy == "date_created" {
		orderCol = "date_created"
	}
	dir := "ASC"
	if f.Order == "desc" {
		dir = "DESC"
	}
	if f.PerPage < 1 {
		f.PerPage = 10
	}
	if f.Page < 1 {
		f.Page = 1
	}
	q := fmt.Sprintf(`%s, COUNT(*) OVER() AS total FROM enrollment_events e %s ORDER BY %s %s, e.id %s LIMIT ? OFFSET ?`,
		enrollmentSelect, where, orderCol, dir, dir)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Enrollment
	total := 0
	for rows.Next() {
		var en domain.Enrollment
		if err := rows.Scan(&en.StudentID, &en.PostID, &en.Status, &en.DateCreated, &en.DateUpdated, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, en)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && f.Page > 1 {
		total, err = r.CountEnrollments(ctx, f)
		if err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// CountEnrollments is the unbounded recount of the pair set.
func (r Repo) CountEnrollments(ctx context.Context, f EnrollmentFilters) (int, error) {
	where, args := enrollmentWhere(f)
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollment_events e `+where, args...).Scan(&total)
	return total, err
}

// GetEnrollment returns the derived record for a single pair.
func (r Repo) GetEnrollment(ctx context.Context, studentID, postID int64) (domain.Enrollment, error) {
	where, args := enrollmentWhere(EnrollmentFilters{StudentID: studentID, PostID: postID})
	row := r.DB.QueryRowContext(ctx, enrollmentSelect+` FROM enrollment_events e `+where, args...)
	var en domain.Enrollment
	err := row.Scan(&en.StudentID, &en.PostID, &en.Status, &en.DateCreated, &en.DateUpdated)
	if err == sql.ErrNoRows {
		return en, ErrNotFound
	}
	return en, err
}

// DeleteEnrollment removes every log row for the pair. Deleting the
// relationship itself is the one hard-delete path of the log.
func (r Repo) DeleteEnrollment(ctx context.Context, studentID, postID int64) error {
	out, err := r.DB.ExecContext(ctx, `DELETE FROM enrollment_events WHERE student_id=? AND post_id=?`, studentID, postID)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
