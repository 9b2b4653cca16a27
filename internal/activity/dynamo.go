package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoTimeline stores entries in a table keyed by leadId (hash) and
// sk = occurredAt#templateId (range).
type DynamoTimeline struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Timeline = (*DynamoTimeline)(nil)

// NewDynamoTimeline builds a timeline backed by the provided DynamoDB client.
func NewDynamoTimeline(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoTimeline {
	if client == nil {
		panic("activity: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("activity: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoTimeline{client: client, tableName: tableName, logger: logger}
}

func (d *DynamoTimeline) Record(ctx context.Context, e Entry) error {
	if e.LeadID == "" {
		return ErrInvalidEntry
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	e.SortKey = e.OccurredAt.UTC().Format(time.RFC3339Nano) + "#" + e.TemplateID

	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("activity: failed to marshal entry: %w", err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("activity: failed to persist entry: %w", err)
	}
	return nil
}

func (d *DynamoTimeline) Signals(ctx context.Context, leadID string) (Signals, error) {
	var entries []Entry
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("leadId = :lead"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":lead": &types.AttributeValueMemberS{Value: leadID},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return Signals{}, fmt.Errorf("activity: query timeline: %w", err)
		}
		var page []Entry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return Signals{}, fmt.Errorf("activity: decode timeline: %w", err)
		}
		entries = append(entries, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return summarize(entries), nil
}
