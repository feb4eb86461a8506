// Package objectstore 存放证明图片。上传成功后返回可公开访问的 URL。
package objectstore

import (
	"context"
	"fmt"

	"runquest/internal/config"
)

type Store interface {
	// Put 写入对象并返回公开 URL；key 形如 2024/05/<hex>.png
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Close() error
}

// New 按配置选择后端
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.Local.Dir, cfg.Local.PublicBaseURL)
	case "supabase":
		return NewSupabase(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Supabase.Bucket), nil
	case "gcs":
		return NewGCS(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile)
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.Backend)
	}
}
