// Package s3 projects robot and container rows as JSON objects in an
// S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/robofleet/internal/fleet/core"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/pkg/util"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

const (
	robotPrefix     = "robots/"
	containerPrefix = "containers/"
	contentType     = "application/json"
)

// Store keeps telemetry rows in a bucket.
type Store struct {
	client     *minio.Client
	bucketName string
}

var (
	_ core.RobotRepository     = (*RobotRepository)(nil)
	_ core.ContainerRepository = (*ContainerRepository)(nil)
)

// New creates an S3 store from options.
func New(opts *options.S3Options) (*Store, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.UseSSL && opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Store{client: client, bucketName: opts.BucketName}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", s.bucketName)
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *Store) Robot() *RobotRepository { return &RobotRepository{s: s} }

func (s *Store) Container() *ContainerRepository { return &ContainerRepository{s: s} }

func robotKey(code string) string {
	return robotPrefix + code + ".json"
}

func containerKey(robotCode, containerCode string) string {
	return path.Join(containerPrefix, robotCode, containerCode+".json")
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return util.ErrNotFound
		}
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy: a missing key surfaces on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return util.ErrNotFound
		}
		return fmt.Errorf("read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode object %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// RobotRepository implements core.RobotRepository on top of Store.
type RobotRepository struct {
	s *Store
}

func (r *RobotRepository) FindByCode(ctx context.Context, code string) (*model.Robot, error) {
	var robot model.Robot
	if err := r.s.getJSON(ctx, robotKey(code), &robot); err != nil {
		return nil, err
	}
	return &robot, nil
}

func (r *RobotRepository) Save(ctx context.Context, robot *model.Robot) error {
	if robot.Code == "" {
		return errors.New("robot code is required")
	}
	return r.s.putJSON(ctx, robotKey(robot.Code), robot)
}

func (r *RobotRepository) List(ctx context.Context) ([]*model.Robot, error) {
	var out []*model.Robot
	for info := range r.s.client.ListObjects(ctx, r.s.bucketName, minio.ListObjectsOptions{Prefix: robotPrefix}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list robots: %w", info.Err)
		}
		code := strings.TrimSuffix(strings.TrimPrefix(info.Key, robotPrefix), ".json")
		robot, err := r.FindByCode(ctx, code)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, robot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ContainerRepository implements core.ContainerRepository on top of Store.
type ContainerRepository struct {
	s *Store
}

func (r *ContainerRepository) FindByRobotCodeAndContainerCode(ctx context.Context, robotCode, containerCode string) (*model.Container, error) {
	var c model.Container
	if err := r.s.getJSON(ctx, containerKey(robotCode, containerCode), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContainerRepository) Save(ctx context.Context, c *model.Container) error {
	if c.RobotCode == "" || c.ContainerCode == "" {
		return errors.New("robot code and container code are required")
	}
	return r.s.putJSON(ctx, containerKey(c.RobotCode, c.ContainerCode), c)
}
