package store

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// NotExistsCondition returns the condition that guards an insert.
func NotExistsCondition() (expression.Expression, error) {
	return expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(AttrPK))).
		Build()
}

// VersionCondition returns the condition that guards an update made against version.
func VersionCondition(version int64) (expression.Expression, error) {
	return expression.NewBuilder().
		WithCondition(expression.Name(AttrVersion).Equal(expression.Value(version))).
		Build()
}

// IndexKeyCondition selects one index partition.
func IndexKeyCondition(sortKey string) (expression.Expression, error) {
	return expression.NewBuilder().
		WithKeyCondition(expression.Key(AttrSK).Equal(expression.Value(sortKey))).
		Build()
}

// PartitionKeyCondition selects the items of one partition, optionally by sort key prefix.
func PartitionKeyCondition(pk, skPrefix string) (expression.Expression, error) {
	cond := expression.Key(AttrPK).Equal(expression.Value(pk))
	if skPrefix != "" {
		cond = cond.And(expression.Key(AttrSK).BeginsWith(skPrefix))
	}
	return expression.NewBuilder().WithKeyCondition(cond).Build()
}

// NumberAttr returns a number attribute value.
func NumberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// StringAttr returns a string attribute value.
func StringAttr(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func buildErr(what string, err error) error {
	return fmt.Errorf("build %s expression: %w", what, err)
}
