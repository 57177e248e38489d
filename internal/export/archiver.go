// Package export archives aged rollout history entries to S3-compatible
// object storage, keeping the hot audit table bounded.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Store defines the database operations needed by the archiver.
type Store interface {
	GetHistoryOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.RolloutHistory, error)
	DeleteHistoryByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	RecordHistoryArchive(ctx context.Context, archiveKey string, rangeStart, rangeEnd time.Time, entryCount int64) error
}

// ObjectPutter is the slice of the S3 API the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds the object storage configuration.
type S3Config struct {
	// Endpoint overrides the AWS endpoint for MinIO and compatible services.
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Validate checks if the configuration is valid.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 archive: bucket is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("s3 archive: access_key_id is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("s3 archive: secret_access_key is required")
	}
	return nil
}

// NewS3Client builds an S3 client from the archive configuration.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 archive: failed to load config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, err := url.Parse(cfg.Endpoint); err == nil && u.Scheme != "" {
			endpoint = cfg.Endpoint
		} else {
			endpoint = "https://" + cfg.Endpoint
		}
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// Config holds the archiver behavior configuration.
type Config struct {
	// RetentionDays is how long entries stay in the hot table.
	RetentionDays int
	// BatchSize limits how many entries one run archives.
	BatchSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 90,
		BatchSize:     5000,
	}
}

// Archiver moves aged history entries into object storage.
type Archiver struct {
	store  Store
	s3     ObjectPutter
	s3cfg  S3Config
	config Config
	logger zerolog.Logger
}

// NewArchiver creates a history archiver.
func NewArchiver(store Store, client ObjectPutter, s3cfg S3Config, config Config, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		s3:     client,
		s3cfg:  s3cfg,
		config: config,
		logger: logger.With().Str("component", "history_archiver").Logger(),
	}
}

// Run archives one batch of aged history entries. Entries are only deleted
// from the hot table after the archive object is durably stored and recorded.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.config.RetentionDays)

	entries, err := a.store.GetHistoryOlderThan(ctx, cutoff, a.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load archivable history: %w", err)
	}
	if len(entries) == 0 {
		a.logger.Debug().Time("cutoff", cutoff).Msg("no history entries to archive")
		return 0, nil
	}

	body, err := marshalEntries(entries)
	if err != nil {
		return 0, err
	}

	rangeStart := entries[0].CreatedAt
	rangeEnd := entries[len(entries)-1].CreatedAt
	key := a.archiveKey(rangeStart, rangeEnd)

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.s3cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload archive %s: %w", key, err)
	}

	if err := a.store.RecordHistoryArchive(ctx, key, rangeStart, rangeEnd, int64(len(entries))); err != nil {
		return 0, fmt.Errorf("record archive %s: %w", key, err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	deleted, err := a.store.DeleteHistoryByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete archived history: %w", err)
	}

	a.logger.Info().
		Str("archive_key", key).
		Int("entries", len(entries)).
		Int64("deleted", deleted).
		Msg("history batch archived")

	return len(entries), nil
}

// archiveKey builds the object key for an archive covering the given range.
func (a *Archiver) archiveKey(start, end time.Time) string {
	key := fmt.Sprintf("rollout-history/%s_%s.ndjson",
		start.UTC().Format("20060102T150405Z"),
		end.UTC().Format("20060102T150405Z"))
	if a.s3cfg.Prefix != "" {
		key = a.s3cfg.Prefix + "/" + key
	}
	return key
}

// marshalEntries encodes history entries as newline-delimited JSON.
func marshalEntries(entries []*models.RolloutHistory) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode history entry %s: %w", e.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// Scheduler runs the archiver on a cron schedule.
type Scheduler struct {
	archiver *Archiver
	spec     string
	cron     *cron.Cron
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler that archives per the cron spec,
// e.g. "0 3 * * *" for daily at 03:00.
func NewScheduler(archiver *Archiver, spec string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		archiver: archiver,
		spec:     spec,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "archive_scheduler").Logger(),
	}
}

// Start registers the cron entry and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("archive scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.archiver.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled archive run failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.spec).Msg("archive scheduler started")
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("archive scheduler stopped")
}
