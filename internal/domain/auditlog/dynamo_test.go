package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func pkOf(item map[string]types.AttributeValue) string {
	if s, ok := item["pk"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.err != nil {
		return nil, f.err
	}
	pk := pkOf(in.Item)
	if aws.ToString(in.ConditionExpression) != "" {
		if _, exists := f.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func TestDynamoStoreInsertIfAbsentIsIdempotent(t *testing.T) {
	ddb := newFakeDynamo()
	s := NewDynamoStore(ddb, "")
	ctx := context.Background()

	first := &Entry{Event: EventInternalOrderRequest, LoggerID: 7, LoggerType: SubjectOrder, Context: json.RawMessage(`{"a":1}`)}
	ok, err := s.InsertIfAbsent(ctx, first)
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}

	second := &Entry{Event: EventInternalOrderRequest, LoggerID: 7, LoggerType: SubjectOrder, Context: json.RawMessage(`{"a":2}`)}
	ok, err = s.InsertIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Fatal("second insert should be a no-op")
	}

	got, err := s.Get(ctx, EventInternalOrderRequest, Subject{Type: SubjectOrder, ID: 7})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Context) != `{"a":1}` {
		t.Fatalf("context overwritten: %s", got.Context)
	}
}

func TestDynamoStoreDistinctEventsCoexist(t *testing.T) {
	s := NewDynamoStore(newFakeDynamo(), "logs")
	ctx := context.Background()

	for _, ev := range []Event{EventInternalRefundRequest, EventExternalRefundRequest} {
		ok, err := s.InsertIfAbsent(ctx, &Entry{Event: ev, LoggerID: 3, LoggerType: SubjectRefund})
		if err != nil || !ok {
			t.Fatalf("insert %s: ok=%v err=%v", ev, ok, err)
		}
	}
	if _, err := s.Get(ctx, EventInternalOrderRequest, Subject{Type: SubjectRefund, ID: 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoStorePropagatesFailures(t *testing.T) {
	ddb := newFakeDynamo()
	ddb.err = errors.New("throttled")
	s := NewDynamoStore(ddb, "")

	ok, err := s.InsertIfAbsent(context.Background(), &Entry{Event: EventExternalOrderRequest, LoggerID: 1, LoggerType: SubjectOrder})
	if err == nil || ok {
		t.Fatalf("expected error, got ok=%v err=%v", ok, err)
	}
}
