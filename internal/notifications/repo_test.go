package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  related_order_id TEXT,
  read_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS notifications`).Error)
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newNotification(t *testing.T, db *gorm.DB, recipientID uuid.UUID, title string, created time.Time) *models.Notification {
	t.Helper()

	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Type:        enums.NotificationTypeOrderPaid,
		Title:       title,
		Message:     "order update",
		CreatedAt:   created,
	}
	require.NoError(t, db.Create(notification).Error)
	return notification
}

func TestRepositoryListNotifications_paginationWalksAllRows(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	recipientID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)
	oldest := newNotification(t, db, recipientID, "oldest", base.Add(-2*time.Hour))
	middle := newNotification(t, db, recipientID, "middle", base.Add(-time.Hour))
	newest := newNotification(t, db, recipientID, "newest", base)
	newNotification(t, db, uuid.New(), "other recipient", base)

	first, cursor, err := repo.List(ctx, listNotificationsParams{RecipientID: recipientID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, newest.ID, first[0].ID)
	require.NotNil(t, cursor)

	second, cursor, err := repo.List(ctx, listNotificationsParams{RecipientID: recipientID, Limit: 1, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, middle.ID, second[0].ID)
	require.NotNil(t, cursor)

	third, cursor, err := repo.List(ctx, listNotificationsParams{RecipientID: recipientID, Limit: 1, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, oldest.ID, third[0].ID)
	assert.Nil(t, cursor)
}

func TestRepositoryListNotifications_unreadOnly(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	recipientID := uuid.New()
	now := time.Now().UTC()
	read := newNotification(t, db, recipientID, "read", now.Add(-time.Minute))
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", read.ID).UpdateColumn("read_at", now).Error)
	unread := newNotification(t, db, recipientID, "unread", now)

	listed, cursor, err := repo.List(ctx, listNotificationsParams{RecipientID: recipientID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, unread.ID, listed[0].ID)
	assert.Nil(t, cursor)
}
