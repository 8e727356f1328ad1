package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoClient is the subset of the DynamoDB API the store needs, so tests
// can substitute a fake.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// sessionItem is the DynamoDB item layout. PK is "SESSION#<key>".
type sessionItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      []byte `dynamodbav:"Data"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

const sessionSK = "BLOB"

// DynamoStore keeps sessions in a single DynamoDB table keyed by PK/SK.
type DynamoStore struct {
	client    DynamoClient
	tableName string
}

// NewDynamoStore loads the default AWS config and creates a store for table.
func NewDynamoStore(ctx context.Context, tableName, region string) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, persistenceErr("load aws config", tableName, err)
	}
	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewDynamoStoreWithClient creates a store over an existing client.
func NewDynamoStoreWithClient(client DynamoClient, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Backend() string { return "dynamodb" }

func (s *DynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "SESSION#" + key},
		"SK": &types.AttributeValueMemberS{Value: sessionSK},
	}
}

// Save puts the session item, overwriting any previous version.
func (s *DynamoStore) Save(ctx context.Context, key string, data []byte) error {
	defer observe(s.Backend(), "save", time.Now())
	if err := validKey(key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	item, err := attributevalue.MarshalMap(sessionItem{
		PK:        "SESSION#" + key,
		SK:        sessionSK,
		Data:      data,
		UpdatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return persistenceErr("marshal", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return persistenceErr("save", key, err)
	}
	return nil
}

// Load reads the session item.
func (s *DynamoStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer observe(s.Backend(), "load", time.Now())

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, persistenceErr("load", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, persistenceErr("unmarshal", key, err)
	}
	if item.Data == nil {
		item.Data = []byte{}
	}
	return item.Data, nil
}

// Delete removes the session item.
func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	defer observe(s.Backend(), "delete", time.Now())

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		return persistenceErr("delete", key, err)
	}
	return nil
}

// Ping describes the table to confirm it is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func (s *DynamoStore) Close() {}
