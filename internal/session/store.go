package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	internalaws "github.com/healthorbit/thyrocare-bridge/internal/aws"
)

// ErrSessionConflict is returned when another writer created or superseded a
// session concurrently; the caller should re-read the active session.
var ErrSessionConflict = errors.New("session superseded concurrently")

// Store persists Thyrocare sessions in DynamoDB. Superseded sessions are kept
// (is_active=false) as an audit trail; only the newest session per principal
// may be active.
type Store struct {
	client    internalaws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
func NewStore(client internalaws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// GetActive fetches the newest session for principal. Returns (nil, nil) when
// no session exists or the newest one has already been deactivated.
func (s *Store) GetActive(ctx context.Context, principal string) (*Session, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("principal = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: principal},
		},
		ScanIndexForward: awsBool(false), // newest first
		Limit:            awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var sess Session
	if err := attributevalue.UnmarshalMap(out.Items[0], &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if !sess.IsActive {
		return nil, nil
	}
	return &sess, nil
}

// Supersede persists next as the active session and, in the same
// TransactWriteItems call, flips prev (the session it replaces) to inactive.
// prev may be nil when the principal has no session yet.
func (s *Store) Supersede(ctx context.Context, prev *Session, next Session) error {
	if next.CreatedAt.IsZero() {
		next.CreatedAt = s.nowFunc().UTC()
	}
	next.CreatedAtUnix = next.CreatedAt.UnixNano()
	next.IsActive = true

	nextMap, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if prev == nil {
		_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                nextMap,
			ConditionExpression: awsString("attribute_not_exists(principal)"),
		})
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
				return ErrSessionConflict
			}
			return fmt.Errorf("put session: %w", err)
		}
		return nil
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName: &s.tableName,
				Item:      nextMap,
			},
		},
		{
			Update: &types.Update{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"principal":       &types.AttributeValueMemberS{Value: prev.Principal},
					"created_at_unix": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", prev.CreatedAtUnix)},
				},
				UpdateExpression:    awsString("SET is_active = :f"),
				ConditionExpression: awsString("is_active = :t"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":f": &types.AttributeValueMemberBOOL{Value: false},
					":t": &types.AttributeValueMemberBOOL{Value: true},
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "TransactionCanceledException" {
			return ErrSessionConflict
		}
		return fmt.Errorf("supersede session transact: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
