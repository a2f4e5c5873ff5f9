package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivekc/oliphant/entity"
)

func TestParseRecord(t *testing.T) {
	n, err := ParseRecord("orders#42###7\n")
	require.NoError(t, err)
	assert.Equal(t, entity.UID{Table: "orders", Key: "42"}, n.UID)
	assert.True(t, n.Version.Equal(entity.NewVersion("7")))

	n, err = ParseRecord("orders#42###-1")
	require.NoError(t, err)
	assert.True(t, n.Version.IsTombstone())
}

func TestParseRecordMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no separator":   "orders#42",
		"empty version":  "orders#42###",
		"no table":       "#42###1",
		"no uid sep":     "orders42###1",
		"empty key":      "orders####1",
		"bad base64 key": "orders#b64:***###1",
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			var m *MalformedError
			require.True(t, errors.As(err, &m))
			assert.Equal(t, rec, m.Record)
		})
	}
}

func TestFormatRecordEncodesAwkwardKeys(t *testing.T) {
	for _, key := range []string{"plain", "a#b", "x###y", "line\nbreak", "b64:literal"} {
		n := Notification{UID: entity.UID{Table: "t", Key: key}, Version: entity.NewVersion("2")}
		rec := FormatRecord(n)
		assert.NotContains(t, rec, "\n")
		got, err := ParseRecord(rec)
		require.NoError(t, err, rec)
		assert.Equal(t, n.UID, got.UID)
	}
	assert.Equal(t, "t#plain###2", FormatRecord(Notification{
		UID: entity.UID{Table: "t", Key: "plain"}, Version: entity.NewVersion("2"),
	}))
	assert.Equal(t, "t#1###-1", FormatRecord(Notification{
		UID: entity.UID{Table: "t", Key: "1"}, Version: entity.Tombstone(),
	}))
}

func TestParseRecordsIsolatesMalformed(t *testing.T) {
	b := ParseRecords([]string{"garbage", "orders#3###7", "orders#4"})
	require.Len(t, b.Notifications, 1)
	assert.Equal(t, "3", b.Notifications[0].UID.Key)
	assert.Len(t, b.Skipped, 2)
	assert.Equal(t, 1, b.Len())
}

func TestQueueDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	u := entity.UID{Table: "t", Key: "1"}
	q.PublishVersion(u, entity.NewVersion("1"))
	q.PublishVersion(u, entity.NewVersion("2"))

	b, err := q.PullLatest(ctx)
	require.NoError(t, err)
	require.Len(t, b.Notifications, 2)
	assert.Equal(t, "1", b.Notifications[0].Version.String())
	assert.Equal(t, "2", b.Notifications[1].Version.String())

	b, err = q.PullLatest(ctx)
	require.NoError(t, err)
	assert.Zero(t, b.Len())
}

func TestQueueFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	q.PublishRaw("t#1###1")
	q.FailWith(errors.New("boom"))

	_, err := q.PullLatest(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	q.FailWith(nil)
	b, err := q.PullLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	require.NoError(t, q.Close())
	_, err = q.PullLatest(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestUnavailableErrorMessage(t *testing.T) {
	err := Unavailable("file", errors.New("eof"))
	assert.Equal(t, "feed file unavailable: eof", err.Error())
	assert.Equal(t, "feed x unavailable", Unavailable("x", nil).Error())
}
