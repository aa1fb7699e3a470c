package gstorage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var ErrObjectNotExist = storage.ErrObjectNotExist

const defaultOpTimeout = time.Second * 50

// locatorBaseURL is the scheme+host every valid object locator
// resolved by this package starts with.
const locatorBaseURL = "https://storage.googleapis.com"

type GStorage struct {
	storageClient *storage.Client
	bucket        string
}

func NewGStorage(credentialsFilePath, bucket string) (*GStorage, error) {
	var client *storage.Client
	var err error

	if credentialsFilePath != "" {
		client, err = storage.NewClient(context.Background(), option.WithCredentialsFile(credentialsFilePath))
	} else {
		client, err = storage.NewClient(context.Background())
	}

	if err != nil {
		return nil, fmt.Errorf("NewGStorage: %v", err)
	}

	return &GStorage{storageClient: client, bucket: bucket}, nil
}

// Upload streams 'r' into the object at 'key' and returns the
// object's locator.
func (gs *GStorage) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	wc := gs.storageClient.Bucket(gs.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(wc, r); err != nil {
		return "", fmt.Errorf("io.Copy: %v", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %v", err)
	}

	return gs.Locator(key), nil
}

// Download copies the object at 'key' into 'w'.
func (gs *GStorage) Download(ctx context.Context, key string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	rc, err := gs.storageClient.Bucket(gs.bucket).Object(key).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return err
	}
	if err != nil {
		return fmt.Errorf("Object(%q).NewReader: %v", key, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("io.Copy: %v", err)
	}

	return nil
}

// Delete removes the object at 'key'. Deleting an object that does
// not exist returns ErrObjectNotExist.
func (gs *GStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	err := gs.storageClient.Bucket(gs.bucket).Object(key).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return err
	}
	if err != nil {
		return fmt.Errorf("Object(%q).Delete: %v", key, err)
	}

	return nil
}

// List returns the keys of every object under 'prefix'.
func (gs *GStorage) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	var keys []string
	it := gs.storageClient.Bucket(gs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Objects(%q): %v", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}

	return keys, nil
}

// Locator returns the stable retrieval locator for 'key'.
func (gs *GStorage) Locator(key string) string {
	return fmt.Sprintf("%v/%v/%v", locatorBaseURL, gs.bucket, key)
}

// KeyFromLocator maps an object locator back to its storage key, or
// fails if the locator doesn't belong to this bucket.
func (gs *GStorage) KeyFromLocator(locator string) (string, error) {
	if !ValidLocator(locator) {
		return "", fmt.Errorf("invalid object locator: %q", locator)
	}

	parsed, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid object locator: %v", err)
	}

	key := strings.TrimPrefix(parsed.Path, "/"+gs.bucket+"/")
	if key == parsed.Path || key == "" {
		return "", fmt.Errorf("locator %q does not belong to bucket %q", locator, gs.bucket)
	}

	return key, nil
}

// ValidLocator reports whether 'locator' looks like a storage object
// locator. Placeholder values(e.g. "Video Recording Started") and
// empty strings are not valid.
func ValidLocator(locator string) bool {
	return strings.HasPrefix(locator, "https://")
}
