package sql

import (
	"database/sql"
	"time"

	"github.com/tigerroll/autobatch/pkg/batch/database"
)

const module = "job_repository"

// store は各 SQL リポジトリが共有する接続とプレースホルダ書式です。
// クエリは '?' で記述し、実行前に Rebind します。
type store struct {
	dbConnection database.DBConnection
	style        database.BindStyle
}

func newStore(dbConn database.DBConnection, dbType string) store {
	return store{dbConnection: dbConn, style: database.BindStyleFor(dbType)}
}

func (s store) q(query string) string {
	return database.Rebind(s.style, query)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
