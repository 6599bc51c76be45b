package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

// DynamoAPI is the subset of *dynamodb.Client the pending-order store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoPendingOrder is the item layout. expires_at is the table's TTL
// attribute (epoch seconds); claimed_until is epoch milliseconds.
type dynamoPendingOrder struct {
	Token        string `dynamodbav:"token"`
	Payload      string `dynamodbav:"payload"`
	ExpiresAt    int64  `dynamodbav:"expires_at"`
	ClaimedUntil int64  `dynamodbav:"claimed_until,omitempty"`
	CreatedAt    string `dynamodbav:"created_at"`
}

type dynamoPendingOrderRepository struct {
	client DynamoAPI
	table  string
	ttl    time.Duration
	now    func() time.Time
}

func NewDynamoPendingOrderRepository(client DynamoAPI, table string, ttl time.Duration) PendingOrderRepository {
	return &dynamoPendingOrderRepository{client: client, table: table, ttl: ttl, now: time.Now}
}

func (r *dynamoPendingOrderRepository) keyFor(token string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"token": &types.AttributeValueMemberS{Value: token}}
}

func (r *dynamoPendingOrderRepository) Put(ctx context.Context, token string, payload *models.CheckoutPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pending order: %w", err)
	}
	now := r.now()
	item, err := attributevalue.MarshalMap(dynamoPendingOrder{
		Token:     token,
		Payload:   string(data),
		ExpiresAt: now.Add(r.ttl).Unix(),
		CreatedAt: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.table), Item: item})
	return err
}

func (r *dynamoPendingOrderRepository) Get(ctx context.Context, token string) (*models.CheckoutPayload, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.keyFor(token),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrPendingOrderNotFound
	}
	var row dynamoPendingOrder
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// TTL deletion is lazy; treat anything past expiry as gone.
	if row.ExpiresAt <= r.now().Unix() {
		return nil, ErrPendingOrderNotFound
	}
	return decodePayload([]byte(row.Payload))
}

func (r *dynamoPendingOrderRepository) Claim(ctx context.Context, token string, lease time.Duration) (*models.CheckoutPayload, error) {
	now := r.now()
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 r.keyFor(token),
		UpdateExpression:    aws.String("SET #claimed = :until"),
		ConditionExpression: aws.String("attribute_exists(#token) AND #expires > :nowSec AND (attribute_not_exists(#claimed) OR #claimed < :nowMs)"),
		ExpressionAttributeNames: map[string]string{
			"#token":   "token",
			"#expires": "expires_at",
			"#claimed": "claimed_until",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":until":  numberAttr(now.Add(lease).UnixMilli()),
			":nowSec": numberAttr(now.Unix()),
			":nowMs":  numberAttr(now.UnixMilli()),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrPendingOrderNotFound
		}
		return nil, err
	}
	var row dynamoPendingOrder
	if err := attributevalue.UnmarshalMap(out.Attributes, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return decodePayload([]byte(row.Payload))
}

func (r *dynamoPendingOrderRepository) Release(ctx context.Context, token string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.table),
		Key:                      r.keyFor(token),
		UpdateExpression:         aws.String("REMOVE #claimed"),
		ConditionExpression:      aws.String("attribute_exists(#token)"),
		ExpressionAttributeNames: map[string]string{"#claimed": "claimed_until", "#token": "token"},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	return err
}

func (r *dynamoPendingOrderRepository) Delete(ctx context.Context, token string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       r.keyFor(token),
	})
	return err
}

func (r *dynamoPendingOrderRepository) PurgeExpired(ctx context.Context) (int64, error) {
	var purged int64
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.table),
			FilterExpression:          aws.String("#expires <= :now"),
			ExpressionAttributeNames:  map[string]string{"#expires": "expires_at", "#token": "token"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": numberAttr(r.now().Unix())},
			ProjectionExpression:      aws.String("#token"),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return purged, err
		}
		for _, item := range out.Items {
			tok, ok := item["token"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := r.Delete(ctx, tok.Value); err != nil {
				return purged, err
			}
			purged++
		}
		if len(out.LastEvaluatedKey) == 0 {
			return purged, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func numberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
