package sqlstore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/opendax/daxd/pkg/daxlog"
)

// CDTRow is one persisted CDT definition, in declaration order (seq), so
// retention restore can recreate them before any tag that references one.
type CDTRow struct {
	Seq  int    `db:"seq"`
	Name string `db:"name"`
	Spec string `db:"spec"` // the Registry.Create colon-separated spec
}

// TagRow is one persisted RETAIN tag.
type TagRow struct {
	Name  string `db:"name"`
	Type  uint32 `db:"type"`
	Count uint32 `db:"count"`
	Attr  uint16 `db:"attr"`
	Data  []byte `db:"data"`
}

func (s *Store) builder() sq.StatementBuilderType { return sq.StatementBuilder.RunWith(s.DB) }

// UpsertCDT inserts or replaces the row for name, assigning it the next
// declaration sequence number if it is new.
func (s *Store) UpsertCDT(name, spec string) error {
	var nextSeq int
	if err := s.DB.Get(&nextSeq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM cdt`); err != nil {
		return err
	}
	_, err := s.builder().Insert("cdt").
		Columns("seq", "name", "spec").
		Values(nextSeq, name, spec).
		Suffix("ON CONFLICT(name) DO UPDATE SET spec = excluded.spec").
		Exec()
	if err != nil {
		daxlog.Errorf("sqlstore: UpsertCDT(%q): %v", name, err)
	}
	return err
}

// LoadCDTs returns every persisted CDT in declaration order.
func (s *Store) LoadCDTs() ([]CDTRow, error) {
	var rows []CDTRow
	err := s.DB.Select(&rows, `SELECT seq, name, spec FROM cdt ORDER BY seq ASC`)
	return rows, err
}

// UpsertTag inserts or replaces the row for a RETAIN tag's current
// definition and data.
func (s *Store) UpsertTag(name string, typ uint32, count uint32, attr uint16, data []byte) error {
	_, err := s.builder().Insert("tag").
		Columns("name", "type", "count", "attr", "data").
		Values(name, typ, count, attr, data).
		Suffix("ON CONFLICT(name) DO UPDATE SET type = excluded.type, count = excluded.count, attr = excluded.attr, data = excluded.data").
		Exec()
	if err != nil {
		daxlog.Errorf("sqlstore: UpsertTag(%q): %v", name, err)
	}
	return err
}

// UpdateTagData re-persists just the data blob of an already-registered
// RETAIN tag, the common case of a write to a live tag.
func (s *Store) UpdateTagData(name string, data []byte) error {
	_, err := s.builder().Update("tag").
		Set("data", data).
		Where(sq.Eq{"name": name}).
		Exec()
	return err
}

// DeleteTag removes a tag's row outright (the structured backend has no
// tombstone concept; unlike flatfile it can physically delete).
func (s *Store) DeleteTag(name string) error {
	_, err := s.builder().Delete("tag").Where(sq.Eq{"name": name}).Exec()
	return err
}

// LoadTags returns every persisted RETAIN tag.
func (s *Store) LoadTags() ([]TagRow, error) {
	var rows []TagRow
	err := s.DB.Select(&rows, `SELECT name, type, count, attr, data FROM tag`)
	return rows, err
}

// GetTag fetches a single tag row, for tests and diagnostics.
func (s *Store) GetTag(name string) (TagRow, error) {
	var row TagRow
	err := s.DB.Get(&row, `SELECT name, type, count, attr, data FROM tag WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return row, err
	}
	return row, err
}
