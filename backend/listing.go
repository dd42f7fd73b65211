package backend

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ListRow is one row of a directory listing, handed to
// inode.Tree.UpdateEntry by the Orchestrator.
type ListRow struct {
	Basename string
	IsDir    bool
	Size     uint64
	Mtime    time.Time
}

// listBucketResult mirrors the subset of S3's ListObjectsV2 XML response
// this fetcher needs. encoding/xml (stdlib) is used rather than a
// third-party XML library: no listing/XML parsing library appears
// anywhere in the example pack, and encoding/xml's struct-tag decoding is
// the idiomatic, zero-dependency way to consume this wire format — see
// DESIGN.md for the explicit standard-library justification.
type listBucketResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Prefix      string   `xml:"Prefix"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []struct {
		Key          string `xml:"Key"`
		Size         uint64 `xml:"Size"`
		LastModified string `xml:"LastModified"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

// FetchListing issues a delimited ListObjectsV2 GET rooted at dirFullpath
// and parses rows out of the XML body. Object keys become File rows;
// CommonPrefixes (the delimiter-collapsed "subdirectories") become
// Directory rows.
func FetchListing(ctx context.Context, client *Client, dirFullpath string) ([]ListRow, error) {
	prefix := dirFullpath
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	q := url.Values{}
	q.Set("list-type", "2")
	q.Set("delimiter", "/")
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	path := "/?" + q.Encode()

	ok, _, body, _ := client.SyncRequest(ctx, path, "GET", nil, false)
	if !ok {
		return nil, fmt.Errorf("listing %s failed", dirFullpath)
	}
	return parseListBucketResult(body, prefix)
}

func parseListBucketResult(body []byte, prefix string) ([]ListRow, error) {
	var result listBucketResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	var rows []ListRow
	for _, c := range result.Contents {
		basename := strings.TrimPrefix(c.Key, prefix)
		if basename == "" || strings.Contains(basename, "/") {
			continue
		}
		mtime, _ := time.Parse(time.RFC3339, c.LastModified)
		rows = append(rows, ListRow{Basename: basename, IsDir: false, Size: c.Size, Mtime: mtime})
	}

	for _, p := range result.CommonPrefixes {
		rest := strings.TrimPrefix(p.Prefix, prefix)
		basename := strings.TrimSuffix(rest, "/")
		if basename == "" {
			continue
		}
		rows = append(rows, ListRow{Basename: basename, IsDir: true})
	}

	return rows, nil
}
