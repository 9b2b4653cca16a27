package activity

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryTimelineSignals(t *testing.T) {
	tl := NewMemoryTimeline()
	ctx := context.Background()

	empty, err := tl.Signals(ctx, "lead-1")
	require.NoError(t, err)
	assert.Nil(t, empty.LastContactAt)
	assert.Zero(t, empty.PriorEmailCount)

	require.NoError(t, tl.Record(ctx, Entry{LeadID: "lead-1", Type: EventEmailSent, TemplateID: "a", OccurredAt: t0}))
	require.NoError(t, tl.Record(ctx, Entry{LeadID: "lead-1", Type: EventEmailSent, TemplateID: "b", OccurredAt: t0.Add(time.Hour)}))
	require.NoError(t, tl.Record(ctx, Entry{LeadID: "lead-2", Type: EventEmailSent, TemplateID: "c", OccurredAt: t0}))

	s, err := tl.Signals(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.PriorEmailCount)
	require.NotNil(t, s.LastContactAt)
	assert.Equal(t, t0.Add(time.Hour), *s.LastContactAt)
	assert.Equal(t, "b", s.LastTemplateID)

	assert.True(t, s.ContactedWithin(t0.Add(2*time.Hour), 24*time.Hour))
	assert.False(t, s.ContactedWithin(t0.Add(48*time.Hour), 24*time.Hour))

	assert.ErrorIs(t, tl.Record(ctx, Entry{}), ErrInvalidEntry)
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, Entry) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	tl := NewMemoryTimeline()
	fan := Fanout{tl, failingRecorder{err: boom}, nil}

	err := fan.Record(context.Background(), Entry{LeadID: "lead-1", Type: EventEmailSent, OccurredAt: t0})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tl.Entries("lead-1"), 1)
}

func TestNotifierSwallowsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	tl := NewMemoryTimeline()
	n := NewNotifier(Fanout{tl, failingRecorder{err: errors.New("down")}}, time.Second, nil)
	for i := 0; i < 5; i++ {
		n.Notify(Entry{LeadID: "lead-1", Type: EventEmailSent, OccurredAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	n.Wait()

	assert.Len(t, tl.Entries("lead-1"), 5)
}

type fakeDynamo struct {
	mu       sync.Mutex
	items    []map[string]types.AttributeValue
	pageSize int
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := in.ExpressionAttributeValues[":lead"].(*types.AttributeValueMemberS).Value
	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["leadId"].(*types.AttributeValueMemberS).Value == lead {
			matched = append(matched, item)
		}
	}
	start := 0
	if in.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(in.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := start + f.pageSize
	out := &dynamodb.QueryOutput{}
	if end >= len(matched) {
		end = len(matched)
	} else {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)}}
	}
	out.Items = matched[start:end]
	return out, nil
}

func TestDynamoTimelinePaginatesSignals(t *testing.T) {
	client := &fakeDynamo{pageSize: 2}
	tl := NewDynamoTimeline(client, "activity", nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tl.Record(ctx, Entry{
			LeadID:     "lead-1",
			Type:       EventEmailSent,
			TemplateID: "tmpl",
			OccurredAt: t0.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, tl.Record(ctx, Entry{LeadID: "lead-2", Type: EventEmailSent, OccurredAt: t0}))

	sk := client.items[0]["sk"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, "2026-06-01T12:00:00Z#tmpl", sk)

	s, err := tl.Signals(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 5, s.PriorEmailCount)
	require.NotNil(t, s.LastContactAt)
	assert.True(t, s.LastContactAt.Equal(t0.Add(4*time.Hour)))
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherSendsEntry(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.local/queue")

	require.NoError(t, pub.Record(context.Background(), Entry{LeadID: "lead-1", Type: EventEmailSent, TemplateID: "t", OccurredAt: t0}))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(client.inputs[0].QueueUrl))

	var got Entry
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.inputs[0].MessageBody)), &got))
	assert.Equal(t, "lead-1", got.LeadID)
	assert.Equal(t, "email_sent", aws.ToString(client.inputs[0].MessageAttributes["event_type"].StringValue))
}
