package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

const (
	slotColumns = `s.id, s.start_time, s.end_time, s.max_capacity,
		COALESCE(s.name, ''), COALESCE(s.description, ''), COALESCE(s.donation_link, ''),
		s.hide_time, s.hide_end_time, s.template_id, s.event_page_id,
		COALESCE(s.created_by_id, ''), s.created_at`

	signupColumns = `g.id, g.slot_id, g.parent_name, COALESCE(g.child_name, ''), g.email,
		COALESCE(g.contribution, ''), COALESCE(g.donation, ''), g.attendee_count,
		g.cancellation_token, g.reminder_sent, g.created_at`

	ownerName = `COALESCE(NULLIF(u.name, ''), u.username, '')`

	occupancy = `COALESCE((SELECT SUM(o.attendee_count) FROM signups o WHERE o.slot_id = s.id), 0)`

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

// MigrateUp applies every *.up.sql file in migrationsDir in lexical order.
// The bundled files are idempotent (IF NOT EXISTS), so reapplying is safe.
func MigrateUp(ctx context.Context, db *dbpg.DB, log *zerolog.Logger, migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	log.Info().Int("files", len(files)).Msgf("Migrations applied from %s", migrationsDir)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func slotDest(s *model.Slot) []any {
	return []any{
		&s.ID, &s.StartTime, &s.EndTime, &s.MaxCapacity,
		&s.Name, &s.Description, &s.DonationLink,
		&s.HideTime, &s.HideEndTime, nullString{&s.TemplateID}, nullString{&s.EventPageID},
		&s.CreatedByID, &s.CreatedAt,
	}
}

func signupDest(g *model.Signup) []any {
	return []any{
		&g.ID, &g.SlotID, &g.ParentName, &g.ChildName, &g.Email,
		&g.Contribution, &g.Donation, &g.AttendeeCount,
		&g.CancellationToken, &g.ReminderSent, &g.CreatedAt,
	}
}

// nullString scans a nullable text column into a *string field.
type nullString struct {
	dst **string
}

func (n nullString) Scan(src any) error {
	var ns sql.NullString
	if err := ns.Scan(src); err != nil {
		return err
	}
	if ns.Valid {
		v := ns.String
		*n.dst = &v
	} else {
		*n.dst = nil
	}
	return nil
}

func scanSlotView(row rowScanner) (*model.SlotView, error) {
	var (
		s        model.Slot
		owner    string
		occupied int
	)
	dest := append(slotDest(&s), &owner, &occupied)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	v := model.NewSlotView(s, occupied, owner)
	return &v, nil
}

func scanSignupDetails(row rowScanner) (*model.SignupDetails, error) {
	var d model.SignupDetails
	dest := append(signupDest(&d.Signup), slotDest(&d.Slot)...)
	dest = append(dest, &d.OwnerName)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &d, nil
}

func nullable(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

func (r *repository) CreateSlot(ctx context.Context, s *model.Slot) error {
	_, err := r.db.Master.ExecContext(ctx, `
		INSERT INTO slots (id, start_time, end_time, max_capacity, name, description, donation_link,
		                   hide_time, hide_end_time, template_id, event_page_id, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
	`, s.ID, s.StartTime, s.EndTime, s.MaxCapacity, s.Name, s.Description, s.DonationLink,
		s.HideTime, s.HideEndTime, nullable(s.TemplateID), nullable(s.EventPageID), s.CreatedByID, s.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	return nil
}

func (r *repository) GetSlot(ctx context.Context, id string) (*model.SlotView, error) {
	row := r.db.Master.QueryRowContext(ctx, `
		SELECT `+slotColumns+`, `+ownerName+`, `+occupancy+`
		FROM slots s
		LEFT JOIN users u ON u.id = s.created_by_id
		WHERE s.id = $1
	`, id)
	v, err := scanSlotView(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return v, nil
}

func (r *repository) ListSlots(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error) {
	query := `
		SELECT ` + slotColumns + `, ` + ownerName + `, ` + occupancy + `
		FROM slots s
		LEFT JOIN users u ON u.id = s.created_by_id
		WHERE ($1 = '' OR s.event_page_id = $1)
		  AND ($2 = '' OR s.created_by_id = $2)
		  AND ($3::timestamptz IS NULL OR s.start_time >= $3)
		ORDER BY s.start_time ASC
	`
	var from any
	if !f.From.IsZero() {
		from = f.From
	}

	rows, err := r.db.QueryContext(ctx, query, f.EventPageID, f.OwnerID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []model.SlotView
	for rows.Next() {
		v, err := scanSlotView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *v)
	}
	return slots, rows.Err()
}

func (r *repository) DeleteSlot(ctx context.Context, id string) error {
	res, err := r.db.Master.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// WithSlotLock serialises writers on one slot with SELECT ... FOR UPDATE.
// Two requests racing for the last spot queue on the row lock, so the second
// one reads the occupancy written by the first.
func (r *repository) WithSlotLock(ctx context.Context, slotID string, fn func(tx SlotTx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var slot model.Slot
	err = tx.QueryRowContext(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.id = $1
		FOR UPDATE
	`, slotID).Scan(slotDest(&slot)...)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("failed to lock slot: %w", err)
	}

	if err := fn(&slotTx{tx: tx, slot: slot}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type slotTx struct {
	tx   *sql.Tx
	slot model.Slot
}

func (t *slotTx) Slot() model.Slot { return t.slot }

func (t *slotTx) Occupancy(ctx context.Context) (int, error) {
	var occupied int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(attendee_count), 0)
		FROM signups
		WHERE slot_id = $1
	`, t.slot.ID).Scan(&occupied)
	if err != nil {
		return 0, fmt.Errorf("failed to sum occupancy: %w", err)
	}
	return occupied, nil
}

func (t *slotTx) InsertSignup(ctx context.Context, g *model.Signup) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO signups (id, slot_id, parent_name, child_name, email, contribution, donation,
		                     attendee_count, cancellation_token, reminder_sent, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, false, $10)
	`, g.ID, t.slot.ID, g.ParentName, g.ChildName, g.Email, g.Contribution, g.Donation,
		g.AttendeeCount, g.CancellationToken, g.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "signups_cancellation_token_key" {
			return ErrTokenConflict
		}
		return fmt.Errorf("failed to create signup: %w", err)
	}
	g.SlotID = t.slot.ID
	return nil
}

func (t *slotTx) UpdateSlot(ctx context.Context, s *model.Slot) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE slots
		SET start_time = $2, end_time = $3, max_capacity = $4,
		    name = NULLIF($5, ''), description = NULLIF($6, ''), donation_link = NULLIF($7, ''),
		    hide_time = $8, hide_end_time = $9
		WHERE id = $1
	`, t.slot.ID, s.StartTime, s.EndTime, s.MaxCapacity, s.Name, s.Description, s.DonationLink,
		s.HideTime, s.HideEndTime)
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	t.slot = *s
	return nil
}

const signupDetailsFrom = `
	FROM signups g
	JOIN slots s ON s.id = g.slot_id
	LEFT JOIN users u ON u.id = s.created_by_id
`

func (r *repository) GetSignupByToken(ctx context.Context, token string) (*model.SignupDetails, error) {
	row := r.db.Master.QueryRowContext(ctx, `
		SELECT `+signupColumns+`, `+slotColumns+`, `+ownerName+signupDetailsFrom+`
		WHERE g.cancellation_token = $1
	`, token)
	d, err := scanSignupDetails(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignupNotFound
		}
		return nil, fmt.Errorf("failed to get signup by token: %w", err)
	}
	return d, nil
}

func (r *repository) GetSignupDetails(ctx context.Context, id string) (*model.SignupDetails, error) {
	row := r.db.Master.QueryRowContext(ctx, `
		SELECT `+signupColumns+`, `+slotColumns+`, `+ownerName+signupDetailsFrom+`
		WHERE g.id = $1
	`, id)
	d, err := scanSignupDetails(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignupNotFound
		}
		return nil, fmt.Errorf("failed to get signup: %w", err)
	}
	return d, nil
}

// DeleteSignupByToken deletes and returns the signup in one statement, so two
// clicks on the same cancellation link cannot both report success.
func (r *repository) DeleteSignupByToken(ctx context.Context, token string) (*model.SignupDetails, error) {
	row := r.db.Master.QueryRowContext(ctx, `
		WITH g AS (
			DELETE FROM signups WHERE cancellation_token = $1 RETURNING *
		)
		SELECT `+signupColumns+`, `+slotColumns+`, `+ownerName+`
		FROM g
		JOIN slots s ON s.id = g.slot_id
		LEFT JOIN users u ON u.id = s.created_by_id
	`, token)
	d, err := scanSignupDetails(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignupNotFound
		}
		return nil, fmt.Errorf("failed to delete signup by token: %w", err)
	}
	return d, nil
}

func (r *repository) DeleteSignup(ctx context.Context, id string) error {
	res, err := r.db.Master.ExecContext(ctx, `DELETE FROM signups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete signup: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSignupNotFound
	}
	return nil
}

func (r *repository) ListSignupsBySlot(ctx context.Context, slotID string) ([]model.Signup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signupColumns+`
		FROM signups g
		WHERE g.slot_id = $1
		ORDER BY g.created_at ASC
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get signups: %w", err)
	}
	defer rows.Close()

	var signups []model.Signup
	for rows.Next() {
		var g model.Signup
		if err := rows.Scan(signupDest(&g)...); err != nil {
			return nil, fmt.Errorf("failed to scan signup: %w", err)
		}
		signups = append(signups, g)
	}
	return signups, rows.Err()
}

func (r *repository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]model.SignupDetails, error) {
	rows, err := r.db.Master.QueryContext(ctx, `
		SELECT `+signupColumns+`, `+slotColumns+`, `+ownerName+signupDetailsFrom+`
		WHERE s.start_time >= $1 AND s.start_time < $2
		  AND g.reminder_sent = false
		ORDER BY s.start_time ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	defer rows.Close()

	var out []model.SignupDetails
	for rows.Next() {
		d, err := scanSignupDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder candidate: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// WithReminderClaim holds the signup row with FOR UPDATE SKIP LOCKED while fn
// sends the reminder. An overlapping sweep skips the row instead of sending a
// second reminder; a failed send rolls back and leaves reminder_sent false.
func (r *repository) WithReminderClaim(ctx context.Context, signupID string, fn func(d model.SignupDetails) error) (bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+signupColumns+`, `+slotColumns+`, `+ownerName+signupDetailsFrom+`
		WHERE g.id = $1 AND g.reminder_sent = false
		FOR UPDATE OF g SKIP LOCKED
	`, signupID)
	d, err := scanSignupDetails(row)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim signup for reminder: %w", err)
	}

	if err := fn(*d); err != nil {
		_ = tx.Rollback()
		return true, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE signups SET reminder_sent = true WHERE id = $1`, signupID); err != nil {
		_ = tx.Rollback()
		return true, fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("failed to commit reminder claim: %w", err)
	}
	return true, nil
}

func (r *repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

func (r *repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUser(ctx, `WHERE username = $1`, username)
}

func (r *repository) getUser(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(name, ''), COALESCE(email, ''), role, status, created_at
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Role, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *repository) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	return r.getTemplate(ctx, `WHERE id = $1`, id)
}

func (r *repository) GetDefaultTemplate(ctx context.Context) (*model.Template, error) {
	return r.getTemplate(ctx, `WHERE is_default = true ORDER BY name LIMIT 1`)
}

func (r *repository) getTemplate(ctx context.Context, where string, args ...any) (*model.Template, error) {
	var t model.Template
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), collect_donation_link, collect_contributing,
		       collect_donating, display_name_as_title, hide_end_time, is_default
		FROM slot_templates `+where, args...,
	).Scan(&t.ID, &t.Name, &t.Description, &t.CollectDonationLink, &t.CollectContributing,
		&t.CollectDonating, &t.DisplayNameAsTitle, &t.HideEndTime, &t.IsDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}
