package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// expiresAtSeconds rounds up so an item never expires before its TTL.
func expiresAtSeconds(now time.Time, ttl time.Duration) int64 {
	end := now.Add(ttl)
	s := end.Unix()
	if end.Nanosecond() > 0 {
		s++
	}
	return s
}

// condition is a condition expression with its placeholders.
type condition struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// versionCondition holds when the item is live and carries version, or, for
// an empty version, when no live item exists. Expired items that DynamoDB has
// not reaped yet count as absent.
func versionCondition(version string, now time.Time) condition {
	names := map[string]string{"#pk": fieldPK, "#exp": fieldExpiresAt}
	values := map[string]types.AttributeValue{":now": numAttr(now.Unix())}
	if version == "" {
		return condition{
			Expr:   "attribute_not_exists(#pk) OR #exp <= :now",
			Names:  names,
			Values: values,
		}
	}
	names["#ver"] = fieldVersion
	delete(names, "#pk")
	values[":ver"] = &types.AttributeValueMemberS{Value: version}
	return condition{
		Expr:   "#ver = :ver AND (attribute_not_exists(#exp) OR #exp > :now)",
		Names:  names,
		Values: values,
	}
}
