package dynamo

// DynamoDB attribute names of a KV item.
const (
	fieldPK        = "pk"
	fieldValue     = "val"
	fieldVersion   = "version"
	fieldExpiresAt = "expires_at" // unix seconds, also the table's TTL attribute
)
