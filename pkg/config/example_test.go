package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/syncflow/pkg/config"
)

// ExampleDefault shows the defaults every configuration starts from.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Log level: %s\n", cfg.Logging.Level)
	fmt.Printf("Batch size: %d\n", cfg.Scheduler.DefaultBatchSize)
	fmt.Printf("Run timeout: %s\n", cfg.Scheduler.RunTimeout)

	// Output:
	// Log level: info
	// Batch size: 1000
	// Run timeout: 1h0m0s
}

// ExampleConfig_BuildSync turns a sync definition into a Sync entity.
func ExampleConfig_BuildSync() {
	cfg, err := config.Parse([]byte(`
connectors:
  - name: warehouse
    kind: source
    type: postgresql
    dsn: postgres://localhost/warehouse
  - name: crm
    kind: destination
    type: mysql
    dsn: user:pass@tcp(localhost:3306)/crm
    catalog:
      request_rate_limit: 100
      request_rate_limit_unit: minute
syncs:
  - id: users
    source: warehouse
    destination: crm
    stream: users
    sync_mode: full_refresh
    model:
      query: SELECT id, email FROM users
      primary_key: id
    schedule:
      type: interval
      interval: 15
      unit: minutes
`))
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	def, _ := cfg.SyncDefinition("users")
	sync, err := cfg.BuildSync(def)
	if err != nil {
		log.Fatal(err)
	}
	spec, _ := sync.ScheduleCronExpression()

	fmt.Println(spec)
	fmt.Println(sync.Config.Stream.RequestRateLimit, sync.Config.Stream.RequestRateLimitUnit)
	fmt.Println(sync.Config.Limit)

	// Output:
	// */15 * * * *
	// 100 minute
	// 1000
}
