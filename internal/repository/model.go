package repository

import (
	"cmp"
	"slices"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

// Metadata holds versioning info for optimistic reloads.
type Metadata struct {
	LastUpdate int64 `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// Document is the persisted snapshot of the local store.
type Document struct {
	Metadata Metadata        `json:"metadata"`
	Records  []entity.Record `json:"records" validate:"dive"`
}

// ApplyDefaults sets fallback values after decode.
func (d *Document) ApplyDefaults() {
	if d.Records == nil {
		d.Records = []entity.Record{}
	}
	for i := range d.Records {
		if d.Records[i].Fields == nil {
			d.Records[i].Fields = jsonvalue.Object{}
		}
	}
}

// SortRecords orders records by type then id, the layout used on disk.
func (d *Document) SortRecords() {
	slices.SortFunc(d.Records, compareRecords)
}

func compareRecords(a, b entity.Record) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// AreDocumentsEqual compares two documents ignoring Metadata and record order.
func AreDocumentsEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Records) != len(b.Records) {
		return false
	}

	as := slices.Clone(a.Records)
	bs := slices.Clone(b.Records)
	slices.SortFunc(as, compareRecords)
	slices.SortFunc(bs, compareRecords)

	for i := range as {
		if as[i].Type != bs[i].Type || as[i].ID != bs[i].ID {
			return false
		}
		if !jsonvalue.Equal(objectOrEmpty(as[i].Fields), objectOrEmpty(bs[i].Fields)) {
			return false
		}
	}
	return true
}

func objectOrEmpty(o jsonvalue.Object) jsonvalue.Object {
	if o == nil {
		return jsonvalue.Object{}
	}
	return o
}
