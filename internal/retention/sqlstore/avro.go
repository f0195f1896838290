package sqlstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"
)

// avroMember names one CDT member and an Avro primitive type. The snapshot
// schema built by buildCDTSchema does not use it: members are not broken out
// there, each CDT is one record holding its colon-separated spec string.
type avroMember struct {
	Name string
	Type string // an Avro primitive type name
}

// SnapshotCDTSchemas writes an OCF (object container file) at path with one
// record (name, seq, spec) per currently persisted CDT, grounded on the
// teacher's metricstore Avro checkpoint writer (internal/metricstore
// reads OCF with goavro.NewOCFReader; this is the write side).
func (s *Store) SnapshotCDTSchemas(path string) error {
	rows, err := s.LoadCDTs()
	if err != nil {
		return err
	}

	schema := buildCDTSchema()
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return fmt.Errorf("sqlstore: building avro codec: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Codec: codec})
	if err != nil {
		return fmt.Errorf("sqlstore: creating OCF writer: %w", err)
	}

	for _, row := range rows {
		rec := map[string]interface{}{
			"name": row.Name,
			"seq":  row.Seq,
			"spec": row.Spec,
		}
		if err := writer.Append([]interface{}{rec}); err != nil {
			return fmt.Errorf("sqlstore: appending CDT record %q: %w", row.Name, err)
		}
	}
	return nil
}

func buildCDTSchema() string {
	schema := map[string]interface{}{
		"type": "record",
		"name": "CDT",
		"fields": []map[string]interface{}{
			{"name": "name", "type": "string"},
			{"name": "seq", "type": "int"},
			{"name": "spec", "type": "string"},
		},
	}
	b, _ := json.Marshal(schema)
	return string(b)
}
