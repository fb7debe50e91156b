package acceptance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (Ledger, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return NewLedger(db), mock
}

func recordRows(id uint, publicID string, documentID, userID uint, version int, contentHash string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "public_id", "document_id", "user_id", "document_version",
		"content_hash", "ip_address", "user_agent", "accepted_at", "created_at", "updated_at",
	}).AddRow(id, publicID, documentID, userID, version, contentHash, "203.0.113.9", "curl/8", now, now, now)
}

func hashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func TestRecord_SameVersionUpsertsInsteadOfDuplicating(t *testing.T) {
	ledger, mock := newTestLedger(t)
	ctx := context.Background()

	first := []byte("generated terms, v1")
	second := []byte("generated terms, v1, re-read after edit")

	mock.ExpectExec("INSERT INTO `acceptance_records` .+ ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectQuery("SELECT \\* FROM `acceptance_records`").
		WillReturnRows(recordRows(8, "pub-1", 3, 5, 1, hashOf(first)))

	rec, err := ledger.Record(ctx, RecordInput{DocumentID: 3, UserID: 5, Version: 1, Content: first})
	require.NoError(t, err)
	assert.Equal(t, hashOf(first), rec.ContentHash)

	// a second acceptance of the same (document, user, version) goes through
	// the same upsert and lands on the existing row with the new hash
	mock.ExpectExec("INSERT INTO `acceptance_records` .+ ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(8, 2))
	mock.ExpectQuery("SELECT \\* FROM `acceptance_records`").
		WillReturnRows(recordRows(8, "pub-1", 3, 5, 1, hashOf(second)))

	rec2, err := ledger.Record(ctx, RecordInput{DocumentID: 3, UserID: 5, Version: 1, Content: second})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID, "re-acceptance must not create a second row")
	assert.Equal(t, rec.PublicID, rec2.PublicID)
	assert.Equal(t, hashOf(second), rec2.ContentHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_RequiresDocumentAndUser(t *testing.T) {
	ledger, mock := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Record(ctx, RecordInput{DocumentID: 0, UserID: 5})
	assert.Error(t, err)
	_, err = ledger.Record(ctx, RecordInput{DocumentID: 3, UserID: 0})
	assert.Error(t, err)

	// nothing reached the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_DefaultsVersionToOne(t *testing.T) {
	ledger, mock := newTestLedger(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO `acceptance_records` .+ ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery("SELECT \\* FROM `acceptance_records`").
		WillReturnRows(recordRows(9, "pub-2", 4, 5, 1, ""))

	rec, err := ledger.Record(ctx, RecordInput{DocumentID: 4, UserID: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DocumentVersion)
	assert.Empty(t, rec.ContentHash, "no content means no hash")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasAccepted_NoneIsNotAnError(t *testing.T) {
	ledger, mock := newTestLedger(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `acceptance_records`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec, err := ledger.HasAccepted(ctx, 3, 5)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasAccepted_ReturnsNewestVersion(t *testing.T) {
	ledger, mock := newTestLedger(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `acceptance_records` .+ORDER BY document_version DESC").
		WillReturnRows(recordRows(8, "pub-1", 3, 5, 2, hashOf([]byte("v2"))))

	rec, err := ledger.HasAccepted(ctx, 3, 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.DocumentVersion)

	assert.NoError(t, mock.ExpectationsWereMet())
}
