package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Supabase Storage REST 客户端，只用到上传接口：
// POST {url}/storage/v1/object/{bucket}/{key}
type Supabase struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

func NewSupabase(baseURL, serviceRoleKey, bucket string) *Supabase {
	if bucket == "" {
		bucket = "proofs"
	}
	return &Supabase{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		key:     serviceRoleKey,
		bucket:  bucket,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *Supabase) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("supabase http=%d body=%s", resp.StatusCode, truncate(string(raw), 300))
	}
	return s.PublicURL(key), nil
}

// PublicURL 公开 bucket 的访问地址
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

func (s *Supabase) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
