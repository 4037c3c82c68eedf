package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"deploygate/internal/deployment/models"
	id "deploygate/pkg/domain"
	"deploygate/pkg/platform/sentinel"
)

const (
	redisKeyPrefix   = "deploygate:deployments:"
	maxWatchAttempts = 5
)

// RedisRecordStore keeps each owner's records in two keys: a hash from
// natural key to JSON record, and a sorted set of natural keys scored by
// creation time.
type RedisRecordStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func recordsKey(owner string) string { return redisKeyPrefix + owner + ":records" }
func createdKey(owner string) string { return redisKeyPrefix + owner + ":by_created" }

type redisRecord struct {
	ID             string    `json:"id"`
	OwnerName      string    `json:"ownerName"`
	Namespace      string    `json:"namespace"`
	DeploymentName string    `json:"deploymentName"`
	AppName        string    `json:"appName"`
	Image          string    `json:"image"`
	Replicas       int32     `json:"replicas"`
	APIVersion     string    `json:"apiVersion"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"createdAt"`
}

func encodeRecord(r models.Record) ([]byte, error) {
	return json.Marshal(redisRecord{
		ID:             r.ID.String(),
		OwnerName:      r.OwnerName,
		Namespace:      r.Namespace,
		DeploymentName: r.DeploymentName,
		AppName:        r.AppName,
		Image:          r.Image,
		Replicas:       r.Replicas,
		APIVersion:     r.APIVersion,
		Kind:           r.Kind,
		CreatedAt:      r.CreatedAt.UTC(),
	})
}

func decodeRecord(raw string) (models.Record, error) {
	var rr redisRecord
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return models.Record{}, fmt.Errorf("decode record: %w", err)
	}
	recordID, err := uuid.Parse(rr.ID)
	if err != nil {
		return models.Record{}, fmt.Errorf("decode record id: %w", err)
	}
	return models.Record{
		ID:             id.RecordID(recordID),
		OwnerName:      rr.OwnerName,
		Namespace:      rr.Namespace,
		DeploymentName: rr.DeploymentName,
		AppName:        rr.AppName,
		Image:          rr.Image,
		Replicas:       rr.Replicas,
		APIVersion:     rr.APIVersion,
		Kind:           rr.Kind,
		CreatedAt:      rr.CreatedAt.UTC(),
	}, nil
}

func (s *RedisRecordStore) ListByOwner(ctx context.Context, owner, namespace string) ([]models.Record, error) {
	keys, err := s.client.ZRevRange(ctx, createdKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list deployment keys: %w", err)
	}
	records := make([]models.Record, 0, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	values, err := s.client.HMGet(ctx, recordsKey(owner), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a record; a concurrent delete got in between
			continue
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		if namespace != "" && r.Namespace != namespace {
			continue
		}
		records = append(records, r)
	}
	sortNewestFirst(records)
	return records, nil
}

// SaveAll upserts records under WATCH so IDs already stored for a natural key
// are reused even when another writer races this one.
func (s *RedisRecordStore) SaveAll(ctx context.Context, records []models.Record) error {
	byOwner := make(map[string][]int)
	for i := range records {
		owner := records[i].OwnerName
		byOwner[owner] = append(byOwner[owner], i)
	}
	for owner, idx := range byOwner {
		if err := s.saveOwned(ctx, owner, records, idx); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisRecordStore) Save(ctx context.Context, record *models.Record) error {
	records := []models.Record{*record}
	if err := s.saveOwned(ctx, record.OwnerName, records, []int{0}); err != nil {
		return err
	}
	*record = records[0]
	return nil
}

func (s *RedisRecordStore) saveOwned(ctx context.Context, owner string, records []models.Record, idx []int) error {
	hashKey, zsetKey := recordsKey(owner), createdKey(owner)

	write := func(rtx *redis.Tx) error {
		fields := make([]string, len(idx))
		for n, i := range idx {
			fields[n] = records[i].NaturalKey()
		}
		existing, err := rtx.HMGet(ctx, hashKey, fields...).Result()
		if err != nil {
			return fmt.Errorf("load existing deployments: %w", err)
		}
		for n, i := range idx {
			if raw, ok := existing[n].(string); ok {
				if prev, err := decodeRecord(raw); err == nil {
					records[i].ID = prev.ID
				}
			}
			assignID(&records[i])
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, i := range idx {
				data, err := encodeRecord(records[i])
				if err != nil {
					return err
				}
				pipe.HSet(ctx, hashKey, records[i].NaturalKey(), data)
				pipe.ZAdd(ctx, zsetKey, redis.Z{
					Score:  float64(records[i].CreatedAt.Unix()),
					Member: records[i].NaturalKey(),
				})
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, write, hashKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save deployments: %w", err)
		}
		return nil
	}
	return fmt.Errorf("save deployments: %w", redis.TxFailedErr)
}

func (s *RedisRecordStore) Delete(ctx context.Context, owner, namespace, name string) error {
	key := models.Record{Namespace: namespace, DeploymentName: name}.NaturalKey()
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, recordsKey(owner), key)
		pipe.ZRem(ctx, createdKey(owner), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	if removed.Val() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
