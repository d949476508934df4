package auditlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const defaultDynamoTable = "payment_logs"

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type logItem struct {
	PK         string `dynamodbav:"pk"`
	RequestID  string `dynamodbav:"request_id"`
	Event      int    `dynamodbav:"event"`
	LoggerID   int64  `dynamodbav:"logger_id"`
	LoggerType string `dynamodbav:"logger_type"`
	Context    string `dynamodbav:"context,omitempty"`
	CreatedAt  string `dynamodbav:"created_at"`
}

// DynamoStore keeps audit entries in a DynamoDB table keyed by
// "<logger_type>#<logger_id>#<event>". Table requirements:
//   - PK: pk (string)
type DynamoStore struct {
	ddb   DynamoAPI
	table string
	now   func() time.Time
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(ddb DynamoAPI, table string) *DynamoStore {
	if table == "" {
		table = defaultDynamoTable
	}
	return &DynamoStore{ddb: ddb, table: table, now: time.Now}
}

func dynamoKey(event Event, subject Subject) string {
	return fmt.Sprintf("%s#%d#%d", subject.Type, subject.ID, int(event))
}

func (s *DynamoStore) InsertIfAbsent(ctx context.Context, e *Entry) (bool, error) {
	createdAt := s.now().UTC()
	it := logItem{
		PK:         dynamoKey(e.Event, Subject{Type: e.LoggerType, ID: e.LoggerID}),
		RequestID:  uuid.NewString(),
		Event:      int(e.Event),
		LoggerID:   e.LoggerID,
		LoggerType: e.LoggerType,
		Context:    string(e.Context),
		CreatedAt:  createdAt.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return false, err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("put payment_log: %w", err)
	}
	e.CreatedAt = createdAt
	return true, nil
}

func (s *DynamoStore) Get(ctx context.Context, event Event, subject Subject) (*Entry, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: dynamoKey(event, subject)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get payment_log: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var it logItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	e := &Entry{
		Event:      Event(it.Event),
		LoggerID:   it.LoggerID,
		LoggerType: it.LoggerType,
		CreatedAt:  createdAt,
	}
	if it.Context != "" {
		e.Context = []byte(it.Context)
	}
	return e, nil
}

// NewDynamoClient builds a client from the environment. endpoint is optional
// and points the client at a local DynamoDB.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(
		getenvDefault("AWS_ACCESS_KEY_ID", "local"),
		getenvDefault("AWS_SECRET_ACCESS_KEY", "local"),
		"",
	)
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
