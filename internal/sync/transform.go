package sync

import (
	"fmt"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/index"
	"github.com/Ukasha007/mizuho-algolia/internal/source"
)

// ObjectID builds the index identifier for an entry. Prefixing with the
// collection keeps identifiers unique across collections sharing one index.
func ObjectID(collection, entryID string) string {
	return collection + "/" + entryID
}

// ToRecord converts one content entry into an index record. Collection
// and region come from the unit scope, not from the entry's echo fields:
// a record must always match the browse filter of the unit that wrote
// it, or the next reconcile would count it as an orphan.
func ToRecord(unit *config.UnitConfig, entry source.Entry) index.Record {
	region := entry.Region
	if unit.Region != "" {
		region = unit.Region
	}
	return index.Record{
		ObjectID:   ObjectID(unit.Collection, entry.ID),
		Collection: unit.Collection,
		Region:     region,
		Title:      entry.Title,
		Body:       entry.Body,
		URL:        entry.URL,
		Tags:       entry.Tags,
		UpdatedAt:  entry.UpdatedAt.Unix(),
	}
}

// ToRecords converts a batch of entries into index records scoped to one
// unit.
func ToRecords(unit *config.UnitConfig, entries []source.Entry) []index.Record {
	records := make([]index.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, ToRecord(unit, entry))
	}
	return records
}

// BuildFilter returns the index filter expression scoping browse and
// reconcile operations to one unit.
func BuildFilter(unit *config.UnitConfig) string {
	if unit.Region == "" {
		return fmt.Sprintf("collection:%s", unit.Collection)
	}
	return fmt.Sprintf("collection:%s AND region:%s", unit.Collection, unit.Region)
}
