package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/finishline/internal/domain/model"
)

// SQLiteStore is a durable Store backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options
}

var _ Store = (*SQLiteStore)(nil)

const itemColumns = `id, image_id, event_id, athlete_id, athlete_name, face_index, confidence,
    combined_score, bounding_box, bib_number, status, claimed_by, claimed_at, claimed_until,
    approved_by, approved_at, rejected_by, rejected_at, rejection_reason, assigned_to,
    assigned_at, notes, created_at, updated_at, version`

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers; the version column still guards
	// against other processes sharing the file.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path, opts: o}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ApplyFusion implements QueueStore.
func (s *SQLiteStore) ApplyFusion(ctx context.Context, image model.ImageRecord, items []model.QueueItem) (int, error) {
	defer observeUpdate(time.Now())
	if image.ImageID == "" {
		return 0, fmt.Errorf("apply fusion: %w: empty image id", ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin fusion tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for i := range items {
		args, err := itemArgs(&items[i])
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO queue_items (`+itemColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
             ON CONFLICT(id) DO NOTHING`,
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("insert queue item %s: %w", items[i].ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	// A redelivered pass keeps the stored summary so review decisions survive.
	redelivered := false
	if inserted == 0 && len(items) > 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM images WHERE image_id = ?`, image.ImageID).Scan(&one)
		switch {
		case err == nil:
			redelivered = true
		case !errors.Is(err, sql.ErrNoRows):
			return 0, fmt.Errorf("check image %s: %w", image.ImageID, err)
		}
	}
	if !redelivered {
		if err := upsertImage(ctx, tx, image); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit fusion tx: %w", err)
	}
	return inserted, nil
}

// GetItem implements QueueStore.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (model.QueueItem, error) {
	defer observeQuery(time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, _, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// ListByStatus implements QueueStore.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status model.QueueStatus, page, limit int) ([]model.QueueItem, int, error) {
	defer observeQuery(time.Now())
	if !validPage(page, limit) {
		return nil, 0, ErrInvalidPage
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE status = ?`, string(status),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status = ?
         ORDER BY created_at ASC, rowid ASC
         LIMIT ? OFFSET ?`,
		string(status), limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	out := make([]model.QueueItem, 0, limit)
	for rows.Next() {
		item, _, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate queue items: %w", err)
	}
	return out, total, nil
}

// Transition implements QueueStore. The update is conditional on the version
// read at the start, so a concurrent writer surfaces as ErrConflict.
func (s *SQLiteStore) Transition(ctx context.Context, id string, allowed []model.QueueStatus, mutate ItemMutation, propagate ImageMutation) (model.QueueItem, error) {
	defer observeUpdate(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	cur, version, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("read queue item: %w", err)
	}
	if !allowedStatus(cur.Status, allowed) {
		return cur, fmt.Errorf("queue item %s is %s: %w", id, cur.Status, ErrInvalidState)
	}

	next := cur
	if err := mutate(&next); err != nil {
		return cur, err
	}
	next.UpdatedAt = s.opts.now().UTC()

	args, err := itemArgs(&next)
	if err != nil {
		return cur, err
	}
	// Drop id (first) and append the optimistic-lock predicate.
	args = append(args[1:], id, version, string(cur.Status))
	res, err := tx.ExecContext(ctx,
		`UPDATE queue_items SET
            image_id = ?, event_id = ?, athlete_id = ?, athlete_name = ?, face_index = ?,
            confidence = ?, combined_score = ?, bounding_box = ?, bib_number = ?, status = ?,
            claimed_by = ?, claimed_at = ?, claimed_until = ?, approved_by = ?, approved_at = ?,
            rejected_by = ?, rejected_at = ?, rejection_reason = ?, assigned_to = ?,
            assigned_at = ?, notes = ?, created_at = ?, updated_at = ?, version = version + 1
         WHERE id = ? AND version = ? AND status = ?`,
		args...,
	)
	if err != nil {
		return cur, fmt.Errorf("update queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cur, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return cur, fmt.Errorf("queue item %s: %w", id, ErrConflict)
	}

	if propagate != nil {
		img, err := getImage(ctx, tx, next.ImageID)
		if err != nil {
			return cur, err
		}
		if err := propagate(next, &img); err != nil {
			return cur, err
		}
		img.UpdatedAt = next.UpdatedAt
		if err := upsertImage(ctx, tx, img); err != nil {
			return cur, err
		}
	}

	if err := tx.Commit(); err != nil {
		return cur, fmt.Errorf("commit transition: %w", err)
	}
	return next, nil
}

// ReleaseExpiredClaims implements QueueStore.
func (s *SQLiteStore) ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	defer observeUpdate(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items
         SET status = ?, claimed_by = NULL, claimed_at = NULL, claimed_until = NULL,
             updated_at = ?, version = version + 1
         WHERE status = ? AND (claimed_until IS NULL OR claimed_until <= ?)`,
		string(model.QueuePending),
		formatTime(s.opts.now()),
		string(model.QueueClaimed),
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("release expired claims: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PurgeResolved implements QueueStore.
func (s *SQLiteStore) PurgeResolved(ctx context.Context, cutoff time.Time) (int, error) {
	defer observeUpdate(time.Now())
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE status IN (?, ?) AND updated_at < ?`,
		string(model.QueueApproved), string(model.QueueRejected), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge resolved items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByStatus implements QueueStore.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.QueueStatus]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[model.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}

// GetImage implements ImageStore.
func (s *SQLiteStore) GetImage(ctx context.Context, imageID string) (model.ImageRecord, error) {
	defer observeQuery(time.Now())
	return getImage(ctx, s.db, imageID)
}

// LookupBib implements StartListStore.
func (s *SQLiteStore) LookupBib(ctx context.Context, eventID, bib string) (model.Athlete, bool, error) {
	var a model.Athlete
	err := s.db.QueryRowContext(ctx,
		`SELECT athlete_id, athlete_name FROM start_list WHERE event_id = ? AND bib_number = ?`,
		eventID, bib,
	).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Athlete{}, false, nil
	}
	if err != nil {
		return model.Athlete{}, false, fmt.Errorf("lookup bib: %w", err)
	}
	return a, true, nil
}

// UpsertStartList implements StartListStore.
func (s *SQLiteStore) UpsertStartList(ctx context.Context, entries []model.StartListEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin start list tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO start_list (event_id, bib_number, athlete_id, athlete_name)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(event_id, bib_number) DO UPDATE SET
                athlete_id = excluded.athlete_id, athlete_name = excluded.athlete_name`,
			e.EventID, e.BibNumber, e.AthleteID, e.Name,
		); err != nil {
			return 0, fmt.Errorf("upsert start list entry %s/%s: %w", e.EventID, e.BibNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit start list: %w", err)
	}
	return len(entries), nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getImage(ctx context.Context, q querier, imageID string) (model.ImageRecord, error) {
	var (
		img                 model.ImageRecord
		eventID             sql.NullString
		status, recs, faces string
		updatedAt           string
	)
	err := q.QueryRowContext(ctx,
		`SELECT image_id, event_id, recognition_status, recognized_athletes, face_attributes, face_count, updated_at
         FROM images WHERE image_id = ?`, imageID,
	).Scan(&img.ImageID, &eventID, &status, &recs, &faces, &img.FaceCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ImageRecord{}, fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}
	if err != nil {
		return model.ImageRecord{}, fmt.Errorf("get image: %w", err)
	}
	img.EventID = eventID.String
	img.RecognitionStatus = model.ImageStatus(status)
	if err := json.Unmarshal([]byte(recs), &img.RecognizedAthletes); err != nil {
		return model.ImageRecord{}, fmt.Errorf("decode recognized athletes: %w", err)
	}
	if err := json.Unmarshal([]byte(faces), &img.FaceAttributes); err != nil {
		return model.ImageRecord{}, fmt.Errorf("decode face attributes: %w", err)
	}
	if img.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.ImageRecord{}, err
	}
	return cloneImage(img), nil
}

func upsertImage(ctx context.Context, q querier, img model.ImageRecord) error {
	img = cloneImage(img)
	recs, err := json.Marshal(img.RecognizedAthletes)
	if err != nil {
		return fmt.Errorf("encode recognized athletes: %w", err)
	}
	faces, err := json.Marshal(img.FaceAttributes)
	if err != nil {
		return fmt.Errorf("encode face attributes: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO images (image_id, event_id, recognition_status, recognized_athletes, face_attributes, face_count, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(image_id) DO UPDATE SET
            event_id = excluded.event_id,
            recognition_status = excluded.recognition_status,
            recognized_athletes = excluded.recognized_athletes,
            face_attributes = excluded.face_attributes,
            face_count = excluded.face_count,
            updated_at = excluded.updated_at`,
		img.ImageID, nullableString(img.EventID), string(img.RecognitionStatus),
		string(recs), string(faces), img.FaceCount, formatTime(img.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert image %s: %w", img.ImageID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (model.QueueItem, int64, error) {
	var (
		item                                       model.QueueItem
		eventID, athleteID, athleteName, bibNumber sql.NullString
		claimedBy, approvedBy, rejectedBy, reason  sql.NullString
		assignedTo                                 sql.NullString
		claimedAt, claimedUntil, approvedAt        sql.NullString
		rejectedAt, assignedAt                     sql.NullString
		faceIndex                                  sql.NullInt64
		box, status, createdAt, updatedAt          string
		version                                    int64
	)
	err := r.Scan(
		&item.ID, &item.ImageID, &eventID, &athleteID, &athleteName, &faceIndex, &item.Confidence,
		&item.CombinedScore, &box, &bibNumber, &status, &claimedBy, &claimedAt, &claimedUntil,
		&approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &reason, &assignedTo,
		&assignedAt, &item.Notes, &createdAt, &updatedAt, &version,
	)
	if err != nil {
		return model.QueueItem{}, 0, err
	}

	if err := json.Unmarshal([]byte(box), &item.BoundingBox); err != nil {
		return model.QueueItem{}, 0, fmt.Errorf("decode bounding box: %w", err)
	}
	item.EventID = eventID.String
	item.Status = model.QueueStatus(status)
	item.AthleteID = stringPtr(athleteID)
	item.AthleteName = stringPtr(athleteName)
	item.BibNumber = stringPtr(bibNumber)
	item.ClaimedBy = stringPtr(claimedBy)
	item.ApprovedBy = stringPtr(approvedBy)
	item.RejectedBy = stringPtr(rejectedBy)
	item.RejectionReason = stringPtr(reason)
	item.AssignedTo = stringPtr(assignedTo)
	if faceIndex.Valid {
		idx := int(faceIndex.Int64)
		item.FaceIndex = &idx
	}

	for _, ts := range []struct {
		raw sql.NullString
		dst **time.Time
	}{
		{claimedAt, &item.ClaimedAt},
		{claimedUntil, &item.ClaimedUntil},
		{approvedAt, &item.ApprovedAt},
		{rejectedAt, &item.RejectedAt},
		{assignedAt, &item.AssignedAt},
	} {
		if *ts.dst, err = timePtr(ts.raw); err != nil {
			return model.QueueItem{}, 0, err
		}
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.QueueItem{}, 0, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.QueueItem{}, 0, err
	}
	return item, version, nil
}

// itemArgs returns column values in itemColumns order, without version.
func itemArgs(item *model.QueueItem) ([]any, error) {
	box, err := json.Marshal(item.BoundingBox)
	if err != nil {
		return nil, fmt.Errorf("encode bounding box: %w", err)
	}
	var faceIndex any
	if item.FaceIndex != nil {
		faceIndex = int64(*item.FaceIndex)
	}
	return []any{
		item.ID, item.ImageID, nullableString(item.EventID), derefString(item.AthleteID),
		derefString(item.AthleteName), faceIndex, item.Confidence, item.CombinedScore,
		string(box), derefString(item.BibNumber), string(item.Status), derefString(item.ClaimedBy),
		formatTimePtr(item.ClaimedAt), formatTimePtr(item.ClaimedUntil), derefString(item.ApprovedBy),
		formatTimePtr(item.ApprovedAt), derefString(item.RejectedBy), formatTimePtr(item.RejectedAt),
		derefString(item.RejectionReason), derefString(item.AssignedTo), formatTimePtr(item.AssignedAt),
		item.Notes, formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	}, nil
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
