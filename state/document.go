package state

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/uuidkit/uuid"
)

// Document is the persisted form shared by every backend that writes bytes.
//
//	sync_interval_ms: 5000
//	nodes:
//	  - id: "3d:8f:2a:11:c0:7e"
//	    clock_sequence: 1234
//	    last_timestamp: 139145318461230000
type Document struct {
	SyncInterval time.Duration
	Records      []Record
}

type documentYAML struct {
	SyncIntervalMS int64      `yaml:"sync_interval_ms"`
	Nodes          []nodeYAML `yaml:"nodes"`
}

type nodeYAML struct {
	ID            string `yaml:"id"`
	ClockSequence uint16 `yaml:"clock_sequence"`
	LastTimestamp uint64 `yaml:"last_timestamp"`
}

// Encode renders doc as yaml.
func Encode(doc Document) ([]byte, error) {
	out := documentYAML{
		SyncIntervalMS: doc.SyncInterval.Milliseconds(),
		Nodes:          make([]nodeYAML, 0, len(doc.Records)),
	}
	for _, r := range doc.Records {
		out.Nodes = append(out.Nodes, nodeYAML{
			ID:            r.Node.String(),
			ClockSequence: r.ClockSequence,
			LastTimestamp: r.LastTimestamp,
		})
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode document: %v", ErrStore, err)
	}
	return data, nil
}

// Decode parses a yaml document. Unknown fields are ignored. A document
// without nodes decodes without error; callers decide whether that is usable.
func Decode(data []byte) (Document, error) {
	var in documentYAML
	if err := yaml.Unmarshal(data, &in); err != nil {
		return Document{}, fmt.Errorf("%w: failed to decode document: %v", ErrStore, err)
	}

	doc := Document{
		SyncInterval: time.Duration(in.SyncIntervalMS) * time.Millisecond,
		Records:      make([]Record, 0, len(in.Nodes)),
	}
	for i, n := range in.Nodes {
		id, err := uuid.ParseNodeID(n.ID)
		if err != nil {
			return Document{}, fmt.Errorf("%w: node %d: %v", ErrStore, i, err)
		}
		if n.ClockSequence > uuid.MaxClockSequence {
			return Document{}, fmt.Errorf("%w: node %s: clock sequence %d exceeds 14 bits", ErrStore, id, n.ClockSequence)
		}
		if n.LastTimestamp > uuid.MaxTimestamp {
			return Document{}, fmt.Errorf("%w: node %s: timestamp %d exceeds 60 bits", ErrStore, id, n.LastTimestamp)
		}
		doc.Records = append(doc.Records, Record{
			Node:          id,
			ClockSequence: n.ClockSequence,
			LastTimestamp: n.LastTimestamp,
		})
	}
	return doc, nil
}

// decodeRecords decodes data and rejects documents without nodes.
func decodeRecords(data []byte, source string) ([]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrStoreUnavailable, source)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("%w: %s has no nodes", ErrStoreUnavailable, source)
	}
	return doc.Records, nil
}
