package repomanager

import (
	"context"
	"database/sql"

	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/repositories/audit"
	"github.com/censusconnect/authserver/internal/server/repositories/sessions"
	"github.com/censusconnect/authserver/internal/server/repositories/throttle"
	"github.com/censusconnect/authserver/internal/server/repositories/tokens"
	"github.com/censusconnect/authserver/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Audit(db dbx.DBTX) audit.Repository
	Throttle(db dbx.DBTX) throttle.Repository
}
