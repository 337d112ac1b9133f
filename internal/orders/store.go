package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	internalaws "github.com/healthorbit/thyrocare-bridge/internal/aws"
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    internalaws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client internalaws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Put persists the full order, stamping updated_at. The sync service mutates
// the Thyrocare sub-record in memory and writes the whole item back.
func (s *Store) Put(ctx context.Context, order *Order) error {
	order.UpdatedAt = s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = order.UpdatedAt
	}
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// ListSyncable scans for orders that have an upstream order number and whose
// local status is not yet terminal: the working set of a full sync run.
func (s *Store) ListSyncable(ctx context.Context) ([]Order, error) {
	var result []Order
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:        &s.tableName,
			FilterExpression: awsString("attribute_exists(thyrocare.order_no) AND NOT (#s IN (:completed, :failed, :cancelled))"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":completed": &types.AttributeValueMemberS{Value: StatusCompleted},
				":failed":    &types.AttributeValueMemberS{Value: StatusFailed},
				":cancelled": &types.AttributeValueMemberS{Value: StatusCancelled},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		for _, item := range out.Items {
			var o Order
			if err := attributevalue.UnmarshalMap(item, &o); err != nil {
				return nil, fmt.Errorf("unmarshal order: %w", err)
			}
			result = append(result, o)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return result, nil
}

func awsString(s string) *string { return &s }
