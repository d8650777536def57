// Package journal records what the node did across restarts.
//
// Each process start opens a boot (identified by a UUID); lifecycle events
// (WiFi and broker connects, heartbeat failures, restart requests) and the
// messages published or received during that boot are stored against it
// in the local SQLite database. The status server reads the journal back.
//
// Usage:
//
//	repo := journal.NewSQLiteRepository(db.DB)
//	boot, err := repo.StartBoot(ctx, cfg.Device.ThingName, version)
//	...
//	repo.RecordEvent(ctx, journal.EventBrokerConnected, "", 1)
//	repo.RecordMessage(ctx, journal.DirectionIn, topic, payload)
package journal
