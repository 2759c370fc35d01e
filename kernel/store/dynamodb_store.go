package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/pkg/errors"
)

// DynamoDB is the subset of the DynamoDB API the store uses.
type DynamoDB interface {
	PutItemWithContext(aws.Context, *dynamodb.PutItemInput, ...request.Option) (*dynamodb.PutItemOutput, error)
	GetItemWithContext(aws.Context, *dynamodb.GetItemInput, ...request.Option) (*dynamodb.GetItemOutput, error)
	DeleteItemWithContext(aws.Context, *dynamodb.DeleteItemInput, ...request.Option) (*dynamodb.DeleteItemOutput, error)
	ScanPagesWithContext(aws.Context, *dynamodb.ScanInput, func(*dynamodb.ScanOutput, bool) bool, ...request.Option) error
}

// tableKeys maps a table to its partition key attribute.
var tableKeys = map[string]string{
	TableRequests: "requestId",
	TableMachines: "machineId",
}

// DynamoDBStore maps each table to "<prefix><table>" with the natural id as
// the partition key.
type DynamoDBStore struct {
	client DynamoDB
	prefix string
}

func NewDynamoDBStore(client DynamoDB, prefix string) *DynamoDBStore {
	return &DynamoDBStore{client: client, prefix: prefix}
}

func (s *DynamoDBStore) tableName(table string) *string {
	return aws.String(s.prefix + table)
}

func (s *DynamoDBStore) item(table, key string, rec Record) (map[string]*dynamodb.AttributeValue, error) {
	item, err := dynamodbattribute.MarshalMap(rec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal record")
	}
	item[tableKeys[table]] = &dynamodb.AttributeValue{S: aws.String(key)}
	return item, nil
}

func (s *DynamoDBStore) keyOf(table, key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		tableKeys[table]: {S: aws.String(key)},
	}
}

func (s *DynamoDBStore) put(ctx context.Context, table, key string, rec Record, condition string) error {
	item, err := s.item(table, key, rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                s.tableName(table),
		Item:                     item,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]*string{"#k": aws.String(tableKeys[table])},
	})
	return err
}

func (s *DynamoDBStore) Insert(ctx context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	err := s.put(ctx, table, key, rec, "attribute_not_exists(#k)")
	if isConditionalFailure(err) {
		return errors.Errorf("record [%s] already exists in [%s]", key, table)
	}
	return errors.Wrapf(err, "failed to insert [%s] into [%s]", key, table)
}

func (s *DynamoDBStore) Get(ctx context.Context, table, key string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      s.tableName(table),
		Key:            s.keyOf(table, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get [%s] from [%s]", key, table)
	}
	if len(out.Item) == 0 {
		return nil, model.NewNotFoundError(table, key)
	}
	var rec Record
	if err := dynamodbattribute.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal record")
	}
	return rec, nil
}

func (s *DynamoDBStore) Update(ctx context.Context, table, key string, rec Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	err := s.put(ctx, table, key, rec, "attribute_exists(#k)")
	if isConditionalFailure(err) {
		return model.NewNotFoundError(table, key)
	}
	return errors.Wrapf(err, "failed to update [%s] in [%s]", key, table)
}

func (s *DynamoDBStore) Delete(ctx context.Context, table, key string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	_, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: s.tableName(table),
		Key:       s.keyOf(table, key),
	})
	return errors.Wrapf(err, "failed to delete [%s] from [%s]", key, table)
}

func (s *DynamoDBStore) Query(ctx context.Context, table string, conds Conditions) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	input := &dynamodb.ScanInput{TableName: s.tableName(table)}
	if len(conds) > 0 {
		fields := make([]string, 0, len(conds))
		for f := range conds {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		names := map[string]*string{}
		values := map[string]*dynamodb.AttributeValue{}
		var clauses []string
		for i, f := range fields {
			av, err := dynamodbattribute.Marshal(conds[f])
			if err != nil {
				return nil, errors.Wrapf(err, "failed to marshal condition [%s]", f)
			}
			n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
			names[n] = aws.String(f)
			values[v] = av
			clauses = append(clauses, n+" = "+v)
		}
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	recs, err := s.scan(ctx, table, input)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range recs {
		if conds.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *DynamoDBStore) Scan(ctx context.Context, table string) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return s.scan(ctx, table, &dynamodb.ScanInput{TableName: s.tableName(table)})
}

func (s *DynamoDBStore) scan(ctx context.Context, table string, input *dynamodb.ScanInput) ([]Record, error) {
	var out []Record
	var decodeErr error
	err := s.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			var rec Record
			if err := dynamodbattribute.UnmarshalMap(item, &rec); err != nil {
				decodeErr = err
				return false
			}
			out = append(out, rec)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan [%s]", table)
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "failed to unmarshal record")
	}
	key := tableKeys[table]
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i][key]) < fmt.Sprint(out[j][key])
	})
	return out, nil
}

func (s *DynamoDBStore) Close() error {
	return nil
}

func isConditionalFailure(err error) bool {
	if awsErr, ok := err.(awserr.Error); ok {
		return awsErr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
	}
	return false
}
