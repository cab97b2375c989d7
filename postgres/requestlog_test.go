package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/chatbridge"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// recordingDB captures statements; only Exec and QueryRow are supported.
type recordingDB struct {
	sql      []string
	args     [][]any
	affected int64
	rowTime  time.Time
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.sql = append(d.sql, sql)
	d.args = append(d.args, args)
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(d.affected, 10)), nil
}

func (d *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *recordingDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.sql = append(d.sql, sql)
	d.args = append(d.args, args)
	return scanFunc(func(dest ...any) error {
		for _, v := range dest {
			*(v.(*time.Time)) = d.rowTime
		}
		return nil
	})
}

func (d *recordingDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

func TestAddRequestLog(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	db := &recordingDB{rowTime: at}
	store := New(db)

	log, err := store.AddRequestLog(context.Background(), chatbridge.RequestLog{
		SessionID: "sess", Model: "flash", Mode: "send", Prompt: "hi",
	})
	require.NoError(t, err)

	assert.Len(t, log.ID, 36)
	assert.Equal(t, chatbridge.StatusPending, log.FinalStatus)
	assert.Equal(t, at, log.CreatedAt)
	assert.Equal(t, at, log.UpdatedAt)
	assert.Equal(t, []any{log.ID, "sess", "flash", "send", "hi", chatbridge.StatusPending}, db.args[0])
}

func TestUpdateRequestLog(t *testing.T) {
	db := &recordingDB{affected: 1}
	store := New(db)

	longErr := strings.Repeat("x", maxErrorLen+10)
	err := store.UpdateRequestLog(context.Background(), "id-1", "resp", chatbridge.StatusFailed,
		chatbridge.FailReasonTimeout, longErr, &chatbridge.Usage{TotalTokens: 9})
	require.NoError(t, err)

	args := db.args[0]
	assert.Equal(t, "id-1", args[0])
	assert.Len(t, args[4], maxErrorLen)
	assert.Equal(t, 9, args[7])
}

func TestUpdateRequestLogKeepsMultibyteErrorValid(t *testing.T) {
	db := &recordingDB{affected: 1}
	store := New(db)

	msg := "xx" + strings.Repeat("中", 2000)
	err := store.UpdateRequestLog(context.Background(), "id-1", "", chatbridge.StatusFailed,
		chatbridge.FailReasonBlocked, msg, nil)
	require.NoError(t, err)

	stored := db.args[0][4].(string)
	assert.True(t, utf8.ValidString(stored))
	assert.Equal(t, maxErrorLen-2, len(stored))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 5))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "a", truncateUTF8("a中", 3))
	assert.Equal(t, "a中", truncateUTF8("a中b", 4))
}

func TestUpdateRequestLogUnknownID(t *testing.T) {
	store := New(&recordingDB{})

	err := store.UpdateRequestLog(context.Background(), "missing", "", chatbridge.StatusSuccess, "", "", nil)
	assert.ErrorContains(t, err, "no log with id missing")
}
