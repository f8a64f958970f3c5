package sqlsource

import (
	"github.com/ajitpratap0/syncflow/pkg/connector/registry"
	"github.com/ajitpratap0/syncflow/pkg/connector/sqlconn"
)

func init() {
	_ = registry.RegisterSource(sqlconn.PostgreSQL, NewFromSpec)
	_ = registry.RegisterSource(sqlconn.MySQL, NewFromSpec)
}
