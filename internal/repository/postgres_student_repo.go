package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresStudentRepo はPostgreSQLを使用した学生プロフィールリポジトリ。
type PostgresStudentRepo struct {
	db *sql.DB
}

// NewPostgresStudentRepo はPostgresStudentRepoを生成する。
func NewPostgresStudentRepo(db *sql.DB) *PostgresStudentRepo {
	return &PostgresStudentRepo{db: db}
}

const studentColumns = `id, user_id, first_name, last_name, school_id, program, created_at, updated_at`

func scanStudent(row interface{ Scan(...interface{}) error }) (*model.Student, error) {
	s := &model.Student{}
	var schoolID sql.NullString
	if err := row.Scan(&s.ID, &s.UserID, &s.FirstName, &s.LastName, &schoolID, &s.Program, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if schoolID.Valid {
		s.SchoolID = &schoolID.String
	}
	return s, nil
}

// FindByID は指定IDの学生を取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByID(ctx context.Context, id string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	return s, nil
}

// FindByUserID はユーザーIDから学生を取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByUserID(ctx context.Context, userID string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student by user ID: %w", err)
	}
	return s, nil
}

// List は学生一覧を姓名順で返す。
func (r *PostgresStudentRepo) List(ctx context.Context) ([]*model.Student, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Update は学生プロフィールを更新する。
func (r *PostgresStudentRepo) Update(ctx context.Context, s *model.Student) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE students
		 SET first_name = $2, last_name = $3, school_id = $4, program = $5, updated_at = $6
		 WHERE id = $1`,
		s.ID, s.FirstName, s.LastName, s.SchoolID, s.Program, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	return expectAffected(result)
}

// expectAffected は更新・削除で1行以上が対象になったことを検証する。
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ StudentRepository = (*PostgresStudentRepo)(nil)
