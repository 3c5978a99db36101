package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"eventhub/internal/apperr"
	"eventhub/internal/models"
)

// Sort orders accepted by ListEvents.
const (
	SortDateAsc    = "date_asc"
	SortDateDesc   = "date_desc"
	SortPopularity = "popularity"
)

// ListQuery carries every filter and pagination parameter for ListEvents.
type ListQuery struct {
	Search string
	Tags   []string
	Sort   string
	Page   int
	Limit  int
}

// Normalize clamps pagination and defaults the sort order.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 50 {
		q.Limit = 50
	}
	switch q.Sort {
	case SortDateAsc, SortDateDesc, SortPopularity:
	default:
		q.Sort = SortDateAsc
	}
}

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

// CreateEvent inserts the event and its tag rows in one transaction.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return err
		}
		if len(event.Tags) == 0 {
			return nil
		}
		tagRows := make([]models.EventTag, len(event.Tags))
		for i, tag := range event.Tags {
			tagRows[i] = models.EventTag{EventID: event.ID, Tag: tag}
		}
		_, err := tx.NewInsert().Model(&tagRows).Exec(ctx)
		return err
	})
}

// GetEventByID fetches one event with its tags.
func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, err
	}

	tags, err := d.tagsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	event.Tags = tags[id]
	if event.Tags == nil {
		event.Tags = []string{}
	}
	return &event, nil
}

// DeleteEvent removes the event together with its tag, attendee, feedback,
// and token rows. Deleting the attendee rows is what removes the event from
// every user's joined set.
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*models.FeedbackToken)(nil),
			(*models.Feedback)(nil),
			(*models.EventAttendee)(nil),
			(*models.EventTag)(nil),
		} {
			if _, err := tx.NewDelete().Model(model).Where("event_id = ?", id).Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
}

// ListEvents returns upcoming events matching the query plus the total match
// count. Because the cutoff is evaluated at query time, the same page can
// return different results as events age out.
func (d *DB) ListEvents(ctx context.Context, q ListQuery) ([]models.Event, int, error) {
	q.Normalize()

	var events []models.Event
	sel := d.Bun.NewSelect().
		Model(&events).
		Where("date >= ?", time.Now())

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		sel = sel.WhereGroup(" AND ", func(sel *bun.SelectQuery) *bun.SelectQuery {
			return sel.
				Where("LOWER(title) LIKE ?", pattern).
				WhereOr("LOWER(description) LIKE ?", pattern)
		})
	}

	// Tag filtering is match-all: one EXISTS per requested tag.
	for _, tag := range q.Tags {
		sel = sel.Where("EXISTS (SELECT 1 FROM event_tags AS t WHERE t.event_id = event.id AND t.tag = ?)", tag)
	}

	switch q.Sort {
	case SortDateDesc:
		sel = sel.Order("date DESC")
	case SortPopularity:
		sel = sel.Order("attendee_count DESC").Order("date ASC")
	default:
		sel = sel.Order("date ASC")
	}

	total, err := sel.
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	if err := d.attachTags(ctx, events); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// CreatedBy returns the events a user organizes.
func (d *DB) CreatedBy(ctx context.Context, userID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("organizer_id = ?", userID).
		Order("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.attachTags(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// JoinedBy returns the events a user has joined.
func (d *DB) JoinedBy(ctx context.Context, userID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Join("JOIN event_attendees AS ea ON ea.event_id = event.id").
		Where("ea.user_id = ?", userID).
		Order("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.attachTags(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// PastEventsPendingFeedback returns events that have ended and have not had
// feedback tokens issued yet.
func (d *DB) PastEventsPendingFeedback(ctx context.Context, now time.Time) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("date < ?", now).
		Where("feedback_sent = ?", false).
		Order("date ASC").
		Scan(ctx)
	return events, err
}

// MarkFeedbackSent flags an event so the sweep never issues tokens twice.
func (d *DB) MarkFeedbackSent(ctx context.Context, eventID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("feedback_sent = ?", true).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}

// ---------------- ATTENDEE SET ----------------

// IsAttendee reports membership in the event's attendee set.
func (d *DB) IsAttendee(ctx context.Context, eventID, userID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.EventAttendee)(nil)).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Exists(ctx)
}

// AddAttendee adds userID to the attendee set and bumps the denormalized
// counter in the same transaction. The insert is conflict-ignoring, so a
// repeat join is a no-op and the counter moves only when the set actually
// grew: the count can never drift from the set size. Returns whether the set
// changed and the fresh count.
func (d *DB) AddAttendee(ctx context.Context, eventID, userID string) (bool, int, error) {
	var added bool
	var count int
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&models.EventAttendee{EventID: eventID, UserID: userID, JoinedAt: time.Now()}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0

		if added {
			if _, err := tx.NewUpdate().
				Model((*models.Event)(nil)).
				Set("attendee_count = attendee_count + 1").
				Where("id = ?", eventID).
				Exec(ctx); err != nil {
				return err
			}
		}

		var err2 error
		count, err2 = d.scanCount(ctx, tx, eventID)
		return err2
	})
	return added, count, err
}

// RemoveAttendee is the symmetric operation: the counter is decremented only
// when a membership row was actually deleted, so leaving twice is a no-op the
// second time.
func (d *DB) RemoveAttendee(ctx context.Context, eventID, userID string) (bool, int, error) {
	var removed bool
	var count int
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.EventAttendee)(nil)).
			Where("event_id = ?", eventID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0

		if removed {
			if _, err := tx.NewUpdate().
				Model((*models.Event)(nil)).
				Set("attendee_count = attendee_count - 1").
				Where("id = ?", eventID).
				Exec(ctx); err != nil {
				return err
			}
		}

		var err2 error
		count, err2 = d.scanCount(ctx, tx, eventID)
		return err2
	})
	return removed, count, err
}

// Attendees returns the users in the event's attendee set.
func (d *DB) Attendees(ctx context.Context, eventID string) ([]models.User, error) {
	var users []models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Join("JOIN event_attendees AS ea ON ea.user_id = \"user\".id").
		Where("ea.event_id = ?", eventID).
		Order("ea.joined_at ASC").
		Scan(ctx)
	return users, err
}

func (d *DB) scanCount(ctx context.Context, tx bun.Tx, eventID string) (int, error) {
	var count int
	err := tx.NewSelect().
		Model((*models.Event)(nil)).
		Column("attendee_count").
		Where("id = ?", eventID).
		Scan(ctx, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// ---------------- TAGS ----------------

func (d *DB) tagsFor(ctx context.Context, eventIDs []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(eventIDs) == 0 {
		return result, nil
	}

	var rows []models.EventTag
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("event_id IN (?)", bun.In(eventIDs)).
		Order("tag").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.EventID] = append(result[row.EventID], row.Tag)
	}
	return result, nil
}

func (d *DB) attachTags(ctx context.Context, events []models.Event) error {
	ids := make([]string, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	tags, err := d.tagsFor(ctx, ids)
	if err != nil {
		return err
	}
	for i := range events {
		events[i].Tags = tags[events[i].ID]
		if events[i].Tags == nil {
			events[i].Tags = []string{}
		}
	}
	return nil
}
