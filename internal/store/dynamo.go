package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Dynamo stores documents in a single DynamoDB table with the collection
// path as partition key and the document ID as sort key. Filters beyond
// the key run client-side after the partition query; the per-user
// collection sizes this system produces keep that cheap.
type Dynamo struct {
	client    *dynamodb.Client
	tableName string
}

type dynamoItem struct {
	PK        string `dynamodbav:"PK"` // collection path
	SK        string `dynamodbav:"SK"` // document id
	Data      string `dynamodbav:"Data"`
	Version   int64  `dynamodbav:"Version"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// NewDynamo loads the default AWS config and returns a DynamoDB-backed
// store against the given table.
func NewDynamo(ctx context.Context, tableName, region, profile string) (*Dynamo, error) {
	var cfg aws.Config
	var err error
	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, domain.E(domain.KindConfig, "store_dynamo_config", "loading AWS config", err)
	}
	return &Dynamo{client: dynamodb.NewFromConfig(cfg), tableName: tableName}, nil
}

// Get unmarshals the document at path into out.
func (d *Dynamo) Get(ctx context.Context, path string, out interface{}) error {
	collection, id := SplitPath(path)
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: collection},
			"SK": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return err
	}
	if resp.Item == nil {
		return ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return err
	}
	return json.Unmarshal([]byte(item.Data), out)
}

// Put writes the document at path unconditionally.
func (d *Dynamo) Put(ctx context.Context, path string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	collection, id := SplitPath(path)
	item := dynamoItem{
		PK:        collection,
		SK:        id,
		Data:      string(raw),
		Version:   time.Now().UnixNano(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	return err
}

// Update performs an optimistic read-modify-write with a conditional put
// on Version, retried 3 times before surfacing a consistency error.
func (d *Dynamo) Update(ctx context.Context, path string, mutate func(raw json.RawMessage) (interface{}, error)) error {
	collection, id := SplitPath(path)

	for attempt := 0; attempt < 3; attempt++ {
		var raw json.RawMessage
		var prevVersion int64
		exists := false

		resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(d.tableName),
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: collection},
				"SK": &ddbtypes.AttributeValueMemberS{Value: id},
			},
		})
		if err != nil {
			return err
		}
		if resp.Item != nil {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
				return err
			}
			raw = json.RawMessage(item.Data)
			prevVersion = item.Version
			exists = true
		}

		next, err := mutate(raw)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		item := dynamoItem{
			PK:        collection,
			SK:        id,
			Data:      string(encoded),
			Version:   prevVersion + 1,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return err
		}

		input := &dynamodb.PutItemInput{
			TableName: aws.String(d.tableName),
			Item:      av,
		}
		if exists {
			input.ConditionExpression = aws.String("Version = :v")
			input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
				":v": &ddbtypes.AttributeValueMemberN{Value: formatInt(prevVersion)},
			}
		} else {
			input.ConditionExpression = aws.String("attribute_not_exists(PK)")
		}

		_, err = d.client.PutItem(ctx, input)
		if err == nil {
			return nil
		}
		var cce *ddbtypes.ConditionalCheckFailedException
		if !errors.As(err, &cce) {
			return err
		}
		// Lost the race, re-read and retry.
	}

	return domain.E(domain.KindConsistency, "store_update_conflict",
		"optimistic update lost 3 times on "+path, nil)
}

// Delete removes the document at path.
func (d *Dynamo) Delete(ctx context.Context, path string) error {
	collection, id := SplitPath(path)
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: collection},
			"SK": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	return err
}

// QueryDocs queries the collection partition and filters client-side.
func (d *Dynamo) QueryDocs(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	var decoded []map[string]interface{}

	var startKey map[string]ddbtypes.AttributeValue
	for {
		resp, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}

		for _, av := range resp.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				continue
			}
			var doc map[string]interface{}
			if err := json.Unmarshal([]byte(item.Data), &doc); err != nil {
				continue
			}
			if !matchFilters(doc, q.Filters) {
				continue
			}
			raws = append(raws, json.RawMessage(item.Data))
			decoded = append(decoded, doc)
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	sortDocs(decoded, raws, q)
	if q.Limit > 0 && len(raws) > q.Limit {
		raws = raws[:q.Limit]
	}
	return raws, nil
}

// Close is a no-op; the AWS SDK manages its own connections.
func (d *Dynamo) Close() error { return nil }

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
