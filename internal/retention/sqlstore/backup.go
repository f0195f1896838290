package sqlstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-co-op/gocron/v2"

	"github.com/opendax/daxd/pkg/daxlog"
)

// S3BackupConfig configures the optional periodic upload of a retention
// database snapshot.
type S3BackupConfig struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Every     time.Duration
}

// S3Backup periodically snapshots the retention database's raw bytes to an
// S3-compatible bucket, grounded on the teacher's pkg/archive/parquet S3
// target and taskmanager gocron scheduling of archive jobs.
type S3Backup struct {
	client    *s3.Client
	bucket    string
	scheduler gocron.Scheduler
	store     *Store
	dbPath    string
}

// NewS3Backup builds (but does not start) a scheduled backup job.
func NewS3Backup(store *Store, dbPath string, cfg S3BackupConfig) (*S3Backup, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("sqlstore: S3 backup requires a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create gocron scheduler: %w", err)
	}

	every := cfg.Every
	if every <= 0 {
		every = 24 * time.Hour
	}

	b := &S3Backup{client: client, bucket: cfg.Bucket, scheduler: sched, store: store, dbPath: dbPath}
	if _, err := sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(b.run),
	); err != nil {
		return nil, fmt.Errorf("sqlstore: schedule backup job: %w", err)
	}
	return b, nil
}

func (b *S3Backup) Start() { b.scheduler.Start() }
func (b *S3Backup) Stop()  { b.scheduler.Shutdown() }

func (b *S3Backup) run() {
	data, err := os.ReadFile(b.dbPath)
	if err != nil {
		daxlog.Errorf("sqlstore: S3 backup: read %q: %v", b.dbPath, err)
		return
	}

	key := fmt.Sprintf("daxd-retain-%d.db", time.Now().Unix())
	_, err = b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		daxlog.Errorf("sqlstore: S3 backup: put object %q: %v", key, err)
		return
	}
	daxlog.Infof("sqlstore: S3 backup uploaded %s (%d bytes)", key, len(data))
}
