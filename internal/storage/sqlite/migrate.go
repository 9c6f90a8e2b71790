package sqlite

import (
	_ "embed"
	"strings"
)

//go:embed schema.sql
var schema string

func (s *Sqlite) Migrate() error {
	stmts := strings.Split(schema, ";\n")

	for _, stmt := range stmts {
		st := strings.TrimSpace(stmt)
		if st == "" {
			continue
		}
		if _, err := s.Db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}
