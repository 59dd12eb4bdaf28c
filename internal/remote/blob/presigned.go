package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vendora/mediasync/internal/common"
)

// URLIssuer hands out a presigned PUT URL for a key. Backends that do not
// expose raw object-store credentials to clients implement this.
type URLIssuer interface {
	PresignPut(ctx context.Context, key string) (string, error)
}

// PresignedStore uploads through presigned PUT URLs issued per key. The key
// still determines the object, so retried uploads overwrite.
type PresignedStore struct {
	issuer URLIssuer
	client *http.Client
}

func NewPresignedStore(issuer URLIssuer, client *http.Client) *PresignedStore {
	if client == nil {
		client = &http.Client{}
	}
	return &PresignedStore{issuer: issuer, client: client}
}

func (s *PresignedStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	url, err := s.issuer.PresignPut(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %v: %w", key, err, common.ErrNetworkTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			return "", fmt.Errorf("upload %s failed: %s; body: %s: %w", key, resp.Status, string(b), common.ErrRemoteRejected)
		}
		return "", fmt.Errorf("upload %s failed: %s; body: %s: %w", key, resp.Status, string(b), common.ErrNetworkTransient)
	}

	return key, nil
}
