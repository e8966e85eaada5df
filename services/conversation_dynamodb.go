package services

import (
	"context"
	"encoding/json"
	"fmt"

	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// conversationItem is one row of the conversations table. Messages are kept as
// a JSON string so both content shapes survive unchanged.
type conversationItem struct {
	ID           string `dynamodbav:"id"`
	Messages     string `dynamodbav:"messages"`
	MessageCount int    `dynamodbav:"messageCount"`
	UpdatedAt    string `dynamodbav:"updatedAt"`
}

// DynamoDBBackend stores one item per conversation keyed by id.
type DynamoDBBackend struct {
	db    DynamoDBAPI
	table string
	now   Clock
}

func NewDynamoDBBackend(db DynamoDBAPI, table string, now Clock) *DynamoDBBackend {
	return &DynamoDBBackend{db: db, table: table, now: clockOrSystem(now)}
}

func (b *DynamoDBBackend) Name() string { return "dynamodb" }

func (b *DynamoDBBackend) Load(ctx context.Context, id string) ([]models.Message, error) {
	out, err := b.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal conversation %s: %w", id, err)
	}
	if item.Messages == "" {
		return nil, nil
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(item.Messages), &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return msgs, nil
}

func (b *DynamoDBBackend) Save(ctx context.Context, id string, messages []models.Message) error {
	if messages == nil {
		messages = []models.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(conversationItem{
		ID:           id,
		Messages:     string(data),
		MessageCount: len(messages),
		UpdatedAt:    GetCurrentTimestamp(b.now),
	})
	if err != nil {
		return err
	}
	_, err = b.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put conversation %s: %w", id, err)
	}
	return nil
}
