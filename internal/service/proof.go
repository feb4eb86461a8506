package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"runquest/internal/objectstore"
	"runquest/internal/observability"

	"github.com/gabriel-vasile/mimetype"
)

// ProofService 校验并保存证明图片，不触碰 run 状态
type ProofService struct {
	store    objectstore.Store
	maxBytes int64
	allowed  map[string]bool
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewProofService(store objectstore.Store, maxBytes int64, allowedTypes []string, metrics *observability.Metrics) *ProofService {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[normalizeType(t)] = true
	}
	return &ProofService{
		store:    store,
		maxBytes: maxBytes,
		allowed:  allowed,
		metrics:  metrics,
		now:      time.Now,
	}
}

type UploadResult struct {
	// 对象 key，形如 2024/05/<hex32>.png
	Path string `json:"path"`
	URL  string `json:"url"`
}

func (s *ProofService) MaxBytes() int64 { return s.maxBytes }

// Upload 声明类型必须在白名单内且与文件头嗅探结果一致
func (s *ProofService) Upload(ctx context.Context, declaredType string, r io.Reader) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "ProofService.Upload")
	defer span.End()

	declared := normalizeType(declaredType)
	if !s.allowed[declared] {
		s.metrics.Upload("rejected")
		return nil, ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		s.metrics.Upload("rejected")
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		s.metrics.Upload("rejected")
		return nil, ErrFileTooLarge
	}

	detected := mimetype.Detect(data)
	if !detected.Is(declared) {
		s.metrics.Upload("rejected")
		return nil, fmt.Errorf("%w: 声明 %s，实际 %s", ErrUnsupportedType, declared, detected.String())
	}

	key, err := s.objectKey(detected.Extension())
	if err != nil {
		return nil, err
	}
	url, err := s.store.Put(ctx, key, declared, data)
	if err != nil {
		slog.ErrorContext(ctx, "上传证明图片失败", "key", key, "err", err)
		s.metrics.Upload("failed")
		return nil, fmt.Errorf("%w: %v", ErrExternalStorage, err)
	}

	s.metrics.Upload("ok")
	return &UploadResult{Path: key, URL: url}, nil
}

// objectKey YYYY/MM/<32 位十六进制>.<ext>
func (s *ProofService) objectKey(ext string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成文件名失败: %w", err)
	}
	return fmt.Sprintf("%s/%s%s", s.now().UTC().Format("2006/01"), hex.EncodeToString(buf), ext), nil
}

func normalizeType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
