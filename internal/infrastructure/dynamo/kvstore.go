package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/id"
)

// kvAPI is the slice of the DynamoDB API the KV store needs.
type kvAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type kvItem struct {
	PK        string `dynamodbav:"pk"`
	Value     []byte `dynamodbav:"val"`
	Version   string `dynamodbav:"version"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// KVStore implements the KV contract on one table keyed by pk.
// Conditional writes run in a single TransactWriteItems call.
type KVStore struct {
	client    kvAPI
	tableName string
	now       func() time.Time
}

func NewKVStore(client kvAPI, tableName string) *KVStore {
	return &KVStore{client: client, tableName: tableName, now: time.Now}
}

func (s *KVStore) Get(ctx context.Context, key string) (domain.KVEntry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(fieldPK, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.KVEntry{}, err
	}
	if out.Item == nil {
		return domain.KVEntry{}, nil
	}
	var it kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return domain.KVEntry{}, fmt.Errorf("unmarshal kv item: %w", err)
	}
	// TTL deletion is lazy; an expired item may still be returned.
	if it.ExpiresAt != 0 && it.ExpiresAt <= s.now().Unix() {
		return domain.KVEntry{}, nil
	}
	return domain.KVEntry{Value: it.Value, Version: it.Version}, nil
}

func (s *KVStore) AtomicCheckAndSet(ctx context.Context, checks []domain.KVCheck, writes []domain.KVWrite) (bool, error) {
	items, err := s.transactItems(checks, writes, s.now())
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return true, nil
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return true, nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && lostRace(tce) {
		return false, nil
	}
	return false, err
}

// transactItems puts each write under the condition of its key's check and
// turns checks on keys that are not written into ConditionChecks.
func (s *KVStore) transactItems(checks []domain.KVCheck, writes []domain.KVWrite, now time.Time) ([]types.TransactWriteItem, error) {
	expected := make(map[string]string, len(checks))
	for _, c := range checks {
		expected[c.Key] = c.ExpectedVersion
	}

	items := make([]types.TransactWriteItem, 0, len(checks)+len(writes))
	written := make(map[string]bool, len(writes))
	for _, w := range writes {
		it := kvItem{PK: w.Key, Value: w.Value, Version: id.New()}
		if w.TTL > 0 {
			it.ExpiresAt = expiresAtSeconds(now, w.TTL)
		}
		av, err := attributevalue.MarshalMap(it)
		if err != nil {
			return nil, fmt.Errorf("marshal kv item: %w", err)
		}
		put := &types.Put{TableName: aws.String(s.tableName), Item: av}
		if v, ok := expected[w.Key]; ok {
			c := versionCondition(v, now)
			put.ConditionExpression = aws.String(c.Expr)
			put.ExpressionAttributeNames = c.Names
			put.ExpressionAttributeValues = c.Values
		}
		items = append(items, types.TransactWriteItem{Put: put})
		written[w.Key] = true
	}
	for _, c := range checks {
		if written[c.Key] {
			continue
		}
		cond := versionCondition(c.ExpectedVersion, now)
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.tableName),
			Key:                       strKey(fieldPK, c.Key),
			ConditionExpression:       aws.String(cond.Expr),
			ExpressionAttributeNames:  cond.Names,
			ExpressionAttributeValues: cond.Values,
		}})
	}
	return items, nil
}

// lostRace reports whether the transaction was cancelled by a failed
// condition or a conflicting transaction, both of which the caller retries.
func lostRace(tce *types.TransactionCanceledException) bool {
	for _, r := range tce.CancellationReasons {
		switch aws.ToString(r.Code) {
		case "ConditionalCheckFailed", "TransactionConflict":
			return true
		}
	}
	return false
}
