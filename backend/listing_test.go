package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleListBucketResult = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Prefix>photos/</Prefix>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>photos/a.jpg</Key>
    <Size>1234</Size>
    <LastModified>2024-01-02T03:04:05Z</LastModified>
  </Contents>
  <Contents>
    <Key>photos/b.jpg</Key>
    <Size>5678</Size>
    <LastModified>2024-01-03T03:04:05Z</LastModified>
  </Contents>
  <CommonPrefixes>
    <Prefix>photos/thumbnails/</Prefix>
  </CommonPrefixes>
</ListBucketResult>`

func TestParseListBucketResult_FilesAndSubdirs(t *testing.T) {
	rows, err := parseListBucketResult([]byte(sampleListBucketResult), "photos/")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byName := map[string]ListRow{}
	for _, r := range rows {
		byName[r.Basename] = r
	}

	a, ok := byName["a.jpg"]
	require.True(t, ok)
	assert.False(t, a.IsDir)
	assert.Equal(t, uint64(1234), a.Size)
	assert.Equal(t, 2024, a.Mtime.Year())

	thumbs, ok := byName["thumbnails"]
	require.True(t, ok)
	assert.True(t, thumbs.IsDir)
}

func TestParseListBucketResult_NestedKeysExcluded(t *testing.T) {
	body := `<ListBucketResult>
  <Contents><Key>photos/sub/deep.jpg</Key><Size>1</Size><LastModified>2024-01-02T03:04:05Z</LastModified></Contents>
  <Contents><Key>photos/</Key><Size>0</Size><LastModified>2024-01-02T03:04:05Z</LastModified></Contents>
</ListBucketResult>`
	rows, err := parseListBucketResult([]byte(body), "photos/")
	require.NoError(t, err)
	assert.Empty(t, rows, "a delimited listing must never surface nested keys or the prefix marker itself")
}

func TestParseListBucketResult_EmptyBucket(t *testing.T) {
	body := `<ListBucketResult><IsTruncated>false</IsTruncated></ListBucketResult>`
	rows, err := parseListBucketResult([]byte(body), "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseListBucketResult_MalformedXML(t *testing.T) {
	_, err := parseListBucketResult([]byte("not xml at all <<<"), "")
	assert.Error(t, err)
}
