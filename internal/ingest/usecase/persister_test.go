package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	itemdomain "famhub-backend/internal/item/domain"
	"famhub-backend/pkg/blob"
	"famhub-backend/pkg/changefeed"
	"famhub-backend/pkg/logger"
	"famhub-backend/pkg/mail"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	return logger.WithComponent(logger.New("text", "panic"), "test")
}

// fakeItemRepo is an in-memory FamilyItemRepository.
type fakeItemRepo struct {
	items       map[string]*itemdomain.FamilyItem
	createErr   error
	updateCalls int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*itemdomain.FamilyItem)}
}

func (f *fakeItemRepo) Create(_ context.Context, item *itemdomain.FamilyItem) error {
	if f.createErr != nil {
		return f.createErr
	}
	stored := *item
	f.items[item.ID] = &stored
	return nil
}

func (f *fakeItemRepo) FindByID(_ context.Context, _, itemID string) (*itemdomain.FamilyItem, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (f *fakeItemRepo) Update(_ context.Context, item *itemdomain.FamilyItem) error {
	f.updateCalls++
	stored := *item
	f.items[item.ID] = &stored
	return nil
}

// fakePublisher records published change events.
type fakePublisher struct {
	events []changefeed.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event changefeed.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

const sampleEmail = "Subject: School trip on Friday\r\n" +
	"From: Teacher <teacher@example.com>\r\n" +
	"To: Dad <dad@example.com>\r\n" +
	"Cc: Mom <mom@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Please sign the attached permission slip.\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"permission.pdf\"\r\n" +
	"\r\n" +
	"%PDF-1.4 fake body\r\n" +
	"--b1--\r\n"

func sampleRawMessage() *mail.RawMessage {
	return &mail.RawMessage{
		ProviderMessageID: "msg-1",
		ProviderThreadID:  "thread-1",
		ReceivedAt:        time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		Raw:               []byte(sampleEmail),
	}
}

func TestPersister_PersistNormalizesMessage(t *testing.T) {
	items := newFakeItemRepo()
	blobs := blob.NewMemoryStore()
	feed := &fakePublisher{}
	persister := NewPersister(items, blobs, feed, testLog())

	itemID, err := persister.Persist(context.Background(), sampleRawMessage(), "fam-1")
	require.NoError(t, err)
	require.NotEmpty(t, itemID)

	item, err := items.FindByID(context.Background(), "fam-1", itemID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, itemdomain.StatusNew, item.Status)
	assert.Equal(t, itemdomain.SourceEmail, item.Source)
	assert.Equal(t, "fam-1", item.FamilyID)

	payload, err := item.EmailPayload()
	require.NoError(t, err)
	assert.Equal(t, "School trip on Friday", payload.Subject)
	assert.Equal(t, "teacher@example.com", payload.Sender)
	assert.Equal(t, []string{"dad@example.com", "mom@example.com"}, payload.Recipients)
	assert.Equal(t, "msg-1", payload.ProviderMessageID)

	// Raw blob and attachment blob both uploaded.
	raw, err := blobs.Download(context.Background(), payload.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, sampleEmail, string(raw))

	require.Len(t, payload.Attachments, 1)
	att := payload.Attachments[0]
	assert.Equal(t, "permission.pdf", att.Name)
	assert.Equal(t, "application/pdf", att.MimeType)
	assert.True(t, strings.HasPrefix(att.BlobPath, payload.BlobPath))

	// Change event published for the new item.
	require.Len(t, feed.events, 1)
	assert.Equal(t, itemID, feed.events[0].ItemID)
	assert.Equal(t, "fam-1", feed.events[0].FamilyID)
}

func TestPersister_FreshIDPerCall(t *testing.T) {
	items := newFakeItemRepo()
	persister := NewPersister(items, blob.NewMemoryStore(), &fakePublisher{}, testLog())

	first, err := persister.Persist(context.Background(), sampleRawMessage(), "fam-1")
	require.NoError(t, err)
	second, err := persister.Persist(context.Background(), sampleRawMessage(), "fam-1")
	require.NoError(t, err)

	// The same provider message persisted twice yields two distinct items.
	assert.NotEqual(t, first, second)
	assert.Len(t, items.items, 2)
}

func TestPersister_ItemWriteFailureFailsWholePersist(t *testing.T) {
	items := newFakeItemRepo()
	items.createErr = errors.New("store down")
	feed := &fakePublisher{}
	persister := NewPersister(items, blob.NewMemoryStore(), feed, testLog())

	_, err := persister.Persist(context.Background(), sampleRawMessage(), "fam-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fam-1")
	assert.Empty(t, feed.events, "no event for a failed persist")
}

func TestPersister_PublishFailureFailsWholePersist(t *testing.T) {
	items := newFakeItemRepo()
	feed := &fakePublisher{err: errors.New("broker down")}
	persister := NewPersister(items, blob.NewMemoryStore(), feed, testLog())

	_, err := persister.Persist(context.Background(), sampleRawMessage(), "fam-1")
	require.Error(t, err)
}

func TestPersister_GarbageMessageFails(t *testing.T) {
	persister := NewPersister(newFakeItemRepo(), blob.NewMemoryStore(), &fakePublisher{}, testLog())

	_, err := persister.Persist(context.Background(), &mail.RawMessage{Raw: []byte("\x00\x01 not a message")}, "fam-1")
	assert.Error(t, err)
}
