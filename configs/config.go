package configs

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort              string `envconfig:"SERVER_PORT" default:"8080"`
	ServerTimeOutInSeconds  int64  `envconfig:"SERVER_TIME_OUT_IN_SECONDS" default:"5"`
	WorkerTimeOutInSeconds  int64  `envconfig:"WORKER_TIME_OUT_IN_SECONDS" default:"15"`
	ProjectLockTTLInSeconds int64  `envconfig:"PROJECT_LOCK_TTL_IN_SECONDS" default:"10"`
	Database                DatabaseConfig
	RabbitMQ                RabbitMQConfig
	RedisConfig             RedisConfig
}

type DatabaseConfig struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	DatabaseTest string `envconfig:"DB_DATABASE_TEST"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"1"`
}

type RabbitMQConfig struct {
	Username              string `envconfig:"RABBIT_USERNAME"`
	Password              string `envconfig:"RABBIT_PASSWORD"`
	Host                  string `envconfig:"RABBIT_HOST"`
	Port                  string `envconfig:"RABBIT_PORT"`
	StatusEventsQueueName string `envconfig:"STATUS_EVENTS_QUEUE_NAME" default:"task-status-events"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX"`
}

// ToMigrationUri returns a string specifically for the migration package with the right prefix
func (d DatabaseConfig) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d DatabaseConfig) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToTestDBConnectionUri returns a string specifically for running the integration tests
func (d DatabaseConfig) ToTestDBConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DatabaseTest,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToRabbitConnectionUri returns a connection URI to be used with the rabbitmq/amqp091-go package
func (d RabbitMQConfig) ToRabbitConnectionUri() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
	)
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

func InitConfig() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		fmt.Print("Cannot load env")
	}

	return &cfg
}
