package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// BookingRepo stores bookings in the `bookings` table.  The SQL is portable
// between MySQL and SQLite: dates are stored as YYYY-MM-DD strings, which
// order lexically, and timestamps as unix milliseconds.
type BookingRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db, now: time.Now}
}

const bookingColumns = `id, room_id, check_in, check_out, beds, status, payment_status, source,
       external_ref, hold_id, total_cents, notes, created_at, updated_at`

// FindOverlapping selects bookings with check_in < to AND check_out > from.
func (r *BookingRepo) FindOverlapping(ctx context.Context, roomID string, from, to time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE check_in < ? AND check_out > ?`
	args := []interface{}{to.UTC().Format(model.DateLayout), from.UTC().Format(model.DateLayout)}
	if roomID != "" {
		q += ` AND room_id = ?`
		args = append(args, roomID)
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// GetByID loads one booking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

// Create inserts a booking.  A duplicate id yields ErrConflict.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	const q = `INSERT INTO bookings (id, room_id, check_in, check_out, beds, status, payment_status, source,
                external_ref, hold_id, total_cents, notes, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		b.ID, b.RoomID,
		b.Dates.CheckIn.Format(model.DateLayout), b.Dates.CheckOut.Format(model.DateLayout),
		b.Beds, string(b.Status), b.PaymentStatus, string(b.Source),
		b.ExternalRef, b.HoldID, b.TotalCents, b.Notes,
		b.CreatedAt.UnixMilli(), b.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: booking %s already exists", ErrConflict, b.ID)
		}
		return unavailable(err)
	}
	return nil
}

// UpdateStatus re-statuses a booking.  Zero affected rows means the id is
// unknown (the MySQL DSN sets clientFoundRows so unchanged rows still count).
func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), r.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return unavailable(err)
	}
	return expectOneRow(res)
}

// Delete removes a booking row.
func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return unavailable(err)
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(s rowScanner) (model.Booking, error) {
	var (
		b                 model.Booking
		checkIn, checkOut string
		status, source    string
		notes             sql.NullString
		created, updated  int64
	)
	err := s.Scan(&b.ID, &b.RoomID, &checkIn, &checkOut, &b.Beds, &status, &b.PaymentStatus, &source,
		&b.ExternalRef, &b.HoldID, &b.TotalCents, &notes, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, err
		}
		return model.Booking{}, unavailable(err)
	}
	dates, err := model.ParseDateRange(checkIn, checkOut)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	st, err := model.ParseBookingStatus(status)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	b.Dates = dates
	b.Status = st
	b.Source = model.NormalizePlatform(source)
	b.Notes = notes.String
	b.CreatedAt = time.UnixMilli(created).UTC()
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// isDuplicateKey recognises primary-key violations from both drivers.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
