// Package redis connects the application to a Redis server.
//
// It wraps the go-redis client with an environment-driven Config, a Connect
// helper that retries until the server is reachable, and a Healthcheck probe.
// The billing webhook's event cache is the primary consumer.
//
// Usage:
//
//	cfg := config.MustLoad[redis.Config]()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	cache := billing.NewRedisEventCache(client, 24*time.Hour)
package redis
