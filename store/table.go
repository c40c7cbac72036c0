package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableAdmin is the subset of *dynamodb.Client used to manage the table itself.
type TableAdmin interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

var _ TableAdmin = (*dynamodb.Client)(nil)

// TableDefinition returns the CreateTable request for the layout described by config:
// key (pk, sk) with an index on (sk, data) that projects every attribute.
func TableDefinition(config Config) *dynamodb.CreateTableInput {
	config.validate()
	return &dynamodb.CreateTableInput{
		TableName: aws.String(config.TableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(AttrSK), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrSK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrData), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(config.IndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(AttrSK), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(AttrData), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeKeysOnly,
		},
	}
}

// EnsureTable creates the table if it does not exist and waits up to maxWait for it to
// become active.
func EnsureTable(ctx context.Context, admin TableAdmin, config Config, maxWait time.Duration) error {
	config.validate()
	describe := &dynamodb.DescribeTableInput{TableName: aws.String(config.TableName)}

	_, err := admin.DescribeTable(ctx, describe)
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", config.TableName, err)
	}

	if _, err := admin.CreateTable(ctx, TableDefinition(config)); err != nil {
		// Someone else got there first.
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", config.TableName, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(admin)
	if err := waiter.Wait(ctx, describe, maxWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", config.TableName, err)
	}
	return nil
}

// DropTable deletes the table. A table that does not exist is not an error.
func DropTable(ctx context.Context, admin TableAdmin, tableName string) error {
	_, err := admin.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)})
	var notFound *types.ResourceNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("delete table %s: %w", tableName, err)
	}
	return nil
}
