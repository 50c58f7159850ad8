package sql

import (
	"embed"
)

// Migrations holds the schema DDL, applied in filename order
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/insert_decision.sql
var InsertDecision string

//go:embed queries/load_decisions.sql
var LoadDecisions string
