package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"scribeq/internal/config"
)

const checkTimeout = 5 * time.Second

// CheckDirectoryAccess verifies path is a directory the process can read,
// write, and traverse.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRedis pings the configured Redis server. A failure is optional:
// workers fall back to polling.
func CheckRedis(ctx context.Context, cfg config.Events) Result {
	result := Result{Name: "Redis events", Optional: true}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		result.Detail = fmt.Sprintf("%s unreachable: %v", cfg.RedisAddr, err)
		return result
	}
	result.Passed = true
	result.Detail = cfg.RedisAddr
	return result
}

// CheckAMQP dials the configured broker and closes the connection.
func CheckAMQP(cfg config.Events) Result {
	result := Result{Name: "RabbitMQ events", Optional: true}
	conn, err := amqp.DialConfig(cfg.AMQPURL, amqp.Config{Dial: amqp.DefaultDial(checkTimeout)})
	if err != nil {
		result.Detail = fmt.Sprintf("broker unreachable: %v", err)
		return result
	}
	_ = conn.Close()
	result.Passed = true
	result.Detail = "exchange " + cfg.AMQPExchange
	return result
}
