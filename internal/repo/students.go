package repo

import (
	"context"
	"database/sql"

	"openlms/internal/domain"
)

func (r Repo) InsertStudent(ctx context.Context, s domain.Student) (domain.Student, error) {
	s.CreatedAt = r.now()
	out, err := r.DB.ExecContext(ctx, `INSERT INTO students(email,name,created_at) VALUES (?,?,?)`,
		s.Email, nullable(s.Name), s.CreatedAt)
	if err != nil {
		return domain.Student{}, err
	}
	s.ID, err = out.LastInsertId()
	return s, err
}

func (r Repo) GetStudent(ctx context.Context, id int64) (domain.Student, error) {
	var s domain.Student
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,email,name,created_at FROM students WHERE id=?`, id).
		Scan(&s.ID, &s.Email, &name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if name.Valid {
		s.Name = name.String
	}
	return s, err
}

func (r Repo) ListStudents(ctx context.Context) ([]domain.Student, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,email,name,created_at FROM students ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Student
	for rows.Next() {
		var s domain.Student
		var name sql.NullString
		if err := rows.Scan(&s.ID, &s.Email, &name, &s.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			s.Name = name.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r Repo) DeleteStudent(ctx context.Context, id int64) error {
	out, err := r.DB.ExecContext(ctx, `DELETE FROM students WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
