package storage

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edusched/school/libs/scheduling"
)

const roomColumns = `id, name, capacity, room_type, location, equipment, status, created_at, updated_at`

func scanRoom(row pgx.Row) (scheduling.Room, error) {
	var r scheduling.Room
	err := row.Scan(&r.ID, &r.Name, &r.Capacity, &r.RoomType, &r.Location, &r.Equipment, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *Queries) GetRoom(ctx context.Context, id int64) (scheduling.Room, error) {
	r, err := scanRoom(q.q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		return scheduling.Room{}, mapError(err)
	}
	return r, nil
}

func (q *Queries) ListRooms(ctx context.Context, f scheduling.RoomFilter) ([]scheduling.Room, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.MinCapacity > 0 {
		add("capacity >= ?", f.MinCapacity)
	}
	if f.RoomType != "" {
		add("room_type = ?", f.RoomType)
	}
	sql := `SELECT ` + roomColumns + ` FROM rooms`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY name ASC`

	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []scheduling.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const teacherColumns = `id, first_name, last_name, email, phone, specialization, status, created_at, updated_at`

func scanTeacher(row pgx.Row) (scheduling.Teacher, error) {
	var t scheduling.Teacher
	err := row.Scan(&t.ID, &t.FirstName, &t.LastName, &t.Email, &t.Phone, &t.Specialization, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) GetTeacher(ctx context.Context, id int64) (scheduling.Teacher, error) {
	t, err := scanTeacher(q.q.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id))
	if err != nil {
		return scheduling.Teacher{}, mapError(err)
	}
	return t, nil
}

// ListTeachers returns teachers with the given status, or all of them when
// status is empty, ordered by name.
func (q *Queries) ListTeachers(ctx context.Context, status scheduling.TeacherStatus) ([]scheduling.Teacher, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+teacherColumns+`
		FROM teachers
		WHERE $1 = '' OR status = $1
		ORDER BY first_name, last_name
	`, string(status))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []scheduling.Teacher{}
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveActivityIDs is read on every availability check; it is never cached.
func (q *Queries) ActiveActivityIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id FROM activities
		WHERE teacher_id = $1 AND status = 'active'
		ORDER BY id
	`, teacherID)
	if err != nil {
		return nil, mapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

const activityColumns = `id, name, description, teacher_id, schedule, start_date, end_date, status, created_at`

func scanActivity(row pgx.Row) (scheduling.Activity, error) {
	var a scheduling.Activity
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.TeacherID, &a.Schedule, &a.StartDate, &a.EndDate, &a.Status, &a.CreatedAt)
	return a, err
}

func (q *Queries) GetActivity(ctx context.Context, id int64) (scheduling.Activity, error) {
	a, err := scanActivity(q.q.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if err != nil {
		return scheduling.Activity{}, mapError(err)
	}
	return a, nil
}

func (q *Queries) ListActivitiesForTeacher(ctx context.Context, teacherID int64) ([]scheduling.Activity, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE teacher_id = $1
		ORDER BY created_at DESC
	`, teacherID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []scheduling.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// assignments collects the SET list of a partial UPDATE.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, col+" = $"+strconv.Itoa(len(a.args)))
}

// sql builds the statement; it reports false when nothing is assigned.
func (a *assignments) sql(table string, id int64, returning string) (string, bool) {
	if len(a.cols) == 0 {
		return "", false
	}
	a.args = append(a.args, id)
	return `UPDATE ` + table + ` SET ` + strings.Join(a.cols, ", ") +
		` WHERE id = $` + strconv.Itoa(len(a.args)) + ` RETURNING ` + returning, true
}

var errNoFields = &scheduling.ValidationError{Message: "No fields to update"}

// UpdateRoom writes the present fields of p in one statement and returns the
// stored row.
func (q *Queries) UpdateRoom(ctx context.Context, id int64, p scheduling.RoomPatch) (scheduling.Room, error) {
	var a assignments
	if v, ok := p.Name.Get(); ok {
		a.set("name", v)
	}
	if v, ok := p.Capacity.Get(); ok {
		a.set("capacity", v)
	}
	if v, ok := p.RoomType.Get(); ok {
		a.set("room_type", v)
	}
	if v, ok := p.Location.Get(); ok {
		a.set("location", v)
	}
	if v, ok := p.Equipment.Get(); ok {
		a.set("equipment", v)
	}
	if v, ok := p.Status.Get(); ok {
		a.set("status", string(v))
	}
	if !p.Empty() {
		a.cols = append(a.cols, "updated_at = now()")
	}
	sql, ok := a.sql("rooms", id, roomColumns)
	if !ok {
		return scheduling.Room{}, errNoFields
	}
	r, err := scanRoom(q.q.QueryRow(ctx, sql, a.args...))
	if err != nil {
		return scheduling.Room{}, mapError(err)
	}
	return r, nil
}

// UpdateTeacher returns scheduling.ErrDuplicate when the new email belongs to another
// teacher.
func (q *Queries) UpdateTeacher(ctx context.Context, id int64, p scheduling.TeacherPatch) (scheduling.Teacher, error) {
	var a assignments
	if v, ok := p.FirstName.Get(); ok {
		a.set("first_name", v)
	}
	if v, ok := p.LastName.Get(); ok {
		a.set("last_name", v)
	}
	if v, ok := p.Email.Get(); ok {
		a.set("email", v)
	}
	if v, ok := p.Phone.Get(); ok {
		a.set("phone", v)
	}
	if v, ok := p.Specialization.Get(); ok {
		a.set("specialization", v)
	}
	if v, ok := p.Status.Get(); ok {
		a.set("status", string(v))
	}
	if !p.Empty() {
		a.cols = append(a.cols, "updated_at = now()")
	}
	sql, ok := a.sql("teachers", id, teacherColumns)
	if !ok {
		return scheduling.Teacher{}, errNoFields
	}
	t, err := scanTeacher(q.q.QueryRow(ctx, sql, a.args...))
	if err != nil {
		return scheduling.Teacher{}, mapError(err)
	}
	return t, nil
}

// UpdateActivity changes an activity. Reassigning the teacher takes effect on
// the next availability check of both teachers.
func (q *Queries) UpdateActivity(ctx context.Context, id int64, p scheduling.ActivityPatch) (scheduling.Activity, error) {
	var a assignments
	if v, ok := p.Name.Get(); ok {
		a.set("name", v)
	}
	if v, ok := p.Description.Get(); ok {
		a.set("description", v)
	}
	if v, ok := p.TeacherID.Get(); ok {
		a.set("teacher_id", v)
	}
	if v, ok := p.Schedule.Get(); ok {
		a.set("schedule", v)
	}
	if v, ok := p.Status.Get(); ok {
		a.set("status", v)
	}
	sql, ok := a.sql("activities", id, activityColumns)
	if !ok {
		return scheduling.Activity{}, errNoFields
	}
	act, err := scanActivity(q.q.QueryRow(ctx, sql, a.args...))
	if err != nil {
		return scheduling.Activity{}, mapError(err)
	}
	return act, nil
}
