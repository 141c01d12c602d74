package storage

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	base, err := url.Parse("https://cdn.example.com/media/")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/media/snapshots/a.jpg",
		objectURL(base, false, "minio:9000", "bucket", "snapshots/a.jpg"))
	assert.Equal(t, "http://minio:9000/bucket/snapshots/a.jpg",
		objectURL(nil, false, "minio:9000", "bucket", "snapshots/a.jpg"))
	assert.Equal(t, "https://minio:9000/bucket/k.jpg",
		objectURL(nil, true, "minio:9000", "bucket", "k.jpg"))
}

func TestSnapshotKey(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	key := SnapshotKey("ICU 3/A", 42, at)
	assert.Regexp(t, regexp.MustCompile(`^snapshots/2024/01/15/icu-3a/42-[0-9a-f]{8}\.jpg$`), key)

	assert.Contains(t, SnapshotKey("  ", 1, at), "/unknown/")
}
