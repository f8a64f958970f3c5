package sqldest

import (
	"github.com/ajitpratap0/syncflow/pkg/connector/registry"
	"github.com/ajitpratap0/syncflow/pkg/connector/sqlconn"
)

func init() {
	_ = registry.RegisterDestination(sqlconn.PostgreSQL, NewFromSpec)
	_ = registry.RegisterDestination(sqlconn.MySQL, NewFromSpec)
}
