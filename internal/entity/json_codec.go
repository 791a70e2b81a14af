package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

// JSONCodec maps a JSON-tagged struct onto a Record: every JSON field becomes
// a record field, and IDOf names the natural identity.
type JSONCodec[M any] struct {
	Type string
	IDOf func(M) string
}

func (c JSONCodec[M]) EntityType() string { return c.Type }

func (c JSONCodec[M]) ToRecord(m M) (Record, error) {
	id := c.IDOf(m)
	if id == "" {
		return Record{}, errors.New("missing id")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s %s: %w", c.Type, id, err)
	}
	v, err := jsonvalue.Decode(data)
	if err != nil {
		return Record{}, err
	}
	fields, ok := jsonvalue.AsObject(v)
	if !ok {
		return Record{}, fmt.Errorf("%s does not encode to a JSON object", c.Type)
	}
	return Record{Type: c.Type, ID: id, Fields: fields}, nil
}

func (c JSONCodec[M]) FromRecord(r Record) (M, error) {
	var m M
	if r.Type != c.Type {
		return m, fmt.Errorf("codec %s cannot decode record of type %s", c.Type, r.Type)
	}
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return m, fmt.Errorf("encode %s %s fields: %w", r.Type, r.ID, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode %s %s: %w", r.Type, r.ID, err)
	}
	return m, nil
}
