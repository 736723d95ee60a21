package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verkehr-aachen/frost-crawler/internal/storage"
	"github.com/verkehr-aachen/frost-crawler/internal/storage/memory"
)

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, storage.Object) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestRecordWritesKeyedObject(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 14, 5, 0, 0, time.UTC))
	blobs := memory.NewBlobStore()
	a, err := New(blobs, "/frost/", clock, nil)
	require.NoError(t, err)

	url := "https://example.test/v1.1/Datastreams?$top=1000"
	body := []byte(`{"value":[]}`)
	require.NoError(t, a.Record(context.Background(), url, body))

	keys := blobs.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "frost/2024/03/01/14/"), keys[0])
	assert.True(t, strings.HasSuffix(keys[0], ".json"))

	obj, ok := blobs.Object(keys[0])
	require.True(t, ok)
	assert.Equal(t, body, obj.Body)
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Equal(t, url, obj.Metadata["source_url"])

	// Same page again in the same hour is the same object.
	require.NoError(t, a.Record(context.Background(), url, body))
	assert.Len(t, blobs.Keys(), 1)

	clock.Advance(time.Hour)
	require.NoError(t, a.Record(context.Background(), url, body))
	assert.Len(t, blobs.Keys(), 2)
}

func TestRecordWrapsErrors(t *testing.T) {
	t.Parallel()

	a, err := New(failingBlobs{}, "frost", nil, nil)
	require.NoError(t, err)
	err = a.Record(context.Background(), "https://example.test/x", []byte("{}"))
	require.ErrorContains(t, err, "bucket unavailable")
}

func TestNewRequiresBlobs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "frost", nil, nil)
	require.Error(t, err)
}
