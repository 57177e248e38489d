package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	entries  []*models.RolloutHistory
	archives []string
	deleted  []uuid.UUID
}

func (m *mockStore) GetHistoryOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*models.RolloutHistory, error) {
	var out []*models.RolloutHistory
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteHistoryByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.deleted = append(m.deleted, ids...)
	return int64(len(ids)), nil
}

func (m *mockStore) RecordHistoryArchive(_ context.Context, archiveKey string, _, _ time.Time, _ int64) error {
	m.archives = append(m.archives, archiveKey)
	return nil
}

type mockS3 struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.keys = append(m.keys, *params.Key)
	body, _ := io.ReadAll(params.Body)
	m.bodies = append(m.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func agedEntry(featureID uuid.UUID, ageDays int) *models.RolloutHistory {
	h := models.NewRolloutHistory(featureID, models.HistoryActionPercentageChanged, models.TriggerManual, "test")
	h.CreatedAt = time.Now().UTC().AddDate(0, 0, -ageDays)
	return h
}

func TestArchiverRun(t *testing.T) {
	featureID := uuid.New()
	store := &mockStore{entries: []*models.RolloutHistory{
		agedEntry(featureID, 120),
		agedEntry(featureID, 100),
		agedEntry(featureID, 5), // inside retention, stays put
	}}
	putter := &mockS3{}

	a := NewArchiver(store, putter, S3Config{Bucket: "archives", Prefix: "prod"}, DefaultConfig(), zerolog.Nop())
	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, putter.keys, 1)
	assert.Contains(t, putter.keys[0], "prod/rollout-history/")
	require.Len(t, store.archives, 1)
	assert.Equal(t, putter.keys[0], store.archives[0])
	assert.Len(t, store.deleted, 2)

	// The archive body is one JSON object per line.
	scanner := bufio.NewScanner(bytes.NewReader(putter.bodies[0]))
	var lines int
	for scanner.Scan() {
		var h models.RolloutHistory
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &h))
		assert.Equal(t, featureID, h.FeatureID)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestArchiverRunNothingToArchive(t *testing.T) {
	store := &mockStore{entries: []*models.RolloutHistory{agedEntry(uuid.New(), 1)}}
	putter := &mockS3{}

	a := NewArchiver(store, putter, S3Config{Bucket: "archives"}, DefaultConfig(), zerolog.Nop())
	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, putter.keys)
	assert.Empty(t, store.deleted)
}

func TestArchiverUploadFailureKeepsRows(t *testing.T) {
	store := &mockStore{entries: []*models.RolloutHistory{agedEntry(uuid.New(), 120)}}
	putter := &mockS3{err: assert.AnError}

	a := NewArchiver(store, putter, S3Config{Bucket: "archives"}, DefaultConfig(), zerolog.Nop())
	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.deleted, "rows must survive a failed upload")
	assert.Empty(t, store.archives)
}

func TestS3ConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     S3Config
		wantErr bool
	}{
		{"valid", S3Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}, false},
		{"missing bucket", S3Config{AccessKeyID: "k", SecretAccessKey: "s"}, true},
		{"missing key", S3Config{Bucket: "b", SecretAccessKey: "s"}, true},
		{"missing secret", S3Config{Bucket: "b", AccessKeyID: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
