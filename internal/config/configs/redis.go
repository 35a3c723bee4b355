package configs

// Redis holds configuration for the Redis instance backing the stock
// counters.
type Redis struct {
	// Addr is the host:port of the Redis server.
	Addr string `env:"ADDRESS" envDefault:"localhost:6379"`
	// Password is optional; empty means no auth.
	Password string `env:"PASSWORD" envDefault:""`
	// DB selects the logical Redis database.
	DB int `env:"DB" envDefault:"0"`
}
