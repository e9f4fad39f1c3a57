package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// objectPutter MinioSink 需要的对象存储能力，*minio.Client 满足该接口
type objectPutter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioSink 将 JSON 报告上传到对象存储：<prefix>/<yyyymmdd>/<run_id>.json
type MinioSink struct {
	bucket   string
	prefix   string
	endpoint string
	client   objectPutter
	// retry 每次重试前的等待
	retry []time.Duration

	mu            sync.Mutex
	bucketEnsured bool
}

// NewMinioSink 按配置创建对象存储输出端
func NewMinioSink(cfg config.MinioConfig) (*MinioSink, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("minio configuration incomplete: host/port missing")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket not configured")
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client initialization failed: %w", err)
	}
	return &MinioSink{
		bucket:   bucket,
		prefix:   strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		endpoint: endpoint,
		client:   client,
		retry:    []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}, nil
}

// ObjectName 报告对象路径
func (m *MinioSink) ObjectName(res *fleet.FleetResult) string {
	day := res.Started.Format("20060102")
	if res.Started.IsZero() {
		day = time.Now().Format("20060102")
	}
	parts := []string{}
	if m.prefix != "" {
		parts = append(parts, m.prefix)
	}
	parts = append(parts, day, slug(res.RunID)+".json")
	return path.Join(parts...)
}

// Write 上传报告，失败时按退避重试
func (m *MinioSink) Write(ctx context.Context, run Run, res *fleet.FleetResult) error {
	data, err := Marshal(run, res)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := m.ensureBucket(ctx, 2); err != nil {
		return fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	object := m.ObjectName(res)
	var lastErr error
	for i := 0; i <= len(m.retry); i++ {
		attemptCtx, cancel := attemptContext(ctx, 30*time.Second)
		_, err := m.client.PutObject(attemptCtx, m.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if i == len(m.retry) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry[i]):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}
	logger.WithFields(logger.KV(
		"run_id", res.RunID,
		"uri", "minio://"+path.Join(m.bucket, object),
		"checksum", checksum(data),
	)).Info("Report uploaded")
	return nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (m *MinioSink) ensureBucket(parent context.Context, retries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketEnsured {
		return nil
	}
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err == nil && !exists {
			err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		}
		cancel()
		if err == nil {
			m.bucketEnsured = true
			return nil
		}
		lastErr = err
		if parent.Err() != nil {
			return parent.Err()
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	return lastErr
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}
