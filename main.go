package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/kinome/kinome-toolbox/api"
	"github.com/kinome/kinome-toolbox/configuration"
	"github.com/kinome/kinome-toolbox/core"
	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/mongo"
	"github.com/kinome/kinome-toolbox/server"
	"github.com/kinome/kinome-toolbox/store"
	"github.com/kinome/kinome-toolbox/timeseries"
	"github.com/kinome/kinome-toolbox/userdb"
)

var (
	rootCmd = &cobra.Command{
		Use:   "kinome-toolbox",
		Short: "Permission gated access to the kinome databases",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  cmdServe,
	}
	permissionCmd = &cobra.Command{
		Use:   "permission",
		Short: "Print the permissions resolved for a key or session",
		RunE:  cmdPermission,
	}

	configPath string
	apiKey     string
	session    string

	config = configuration.Configuration{}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configuration.DefaultPath, "path to configuration")
	permissionCmd.Flags().StringVar(&apiKey, "key", "", "API key to resolve")
	permissionCmd.Flags().StringVar(&session, "session", "", "session cookie to resolve")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(permissionCmd)
}

type components struct {
	registry    metrics.Registry
	connections *store.ConnectionCache
	oracle      userdb.Oracle
	redis       *redis.Client
}

func (c *components) Close() {
	c.connections.Close()

	if c.redis != nil {
		c.redis.Close()
	}
}

func loadConfiguration() error {
	err := config.LoadFromFile(configPath)
	if err != nil {
		return errs.New("configuration error: %s", err.Error())
	}

	logger.SetDebug(config.Debug)

	return nil
}

func setup() *components {
	c := &components{
		registry: metrics.NewRegistry(),
	}

	c.connections = store.NewConnectionCache(mongo.NewDialer(config.Mongo), c.registry)

	var grants []userdb.Grant
	if len(config.Auth.Grants) > 0 {
		grants = userdb.GrantsFromConfiguration(config.Auth.Grants)
	}

	if config.Auth.MultiUser() {
		c.oracle = userdb.NewMongoOracle(c.connections, config.Mongo.Users, grants)
	} else {
		c.oracle = userdb.NewSingleUser(config.Server.Secret, grants)
	}

	if config.Auth.Redis.Enabled && config.Auth.CacheDuration() > 0 {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     config.Auth.Redis.Addr,
			Password: config.Auth.Redis.Password,
			DB:       config.Auth.Redis.DB,
		})

		c.oracle = userdb.NewCachedOracle(c.oracle, c.redis, config.Auth.CacheDuration())
	}

	return c
}

func cmdServe(cmd *cobra.Command, args []string) error {
	err := loadConfiguration()
	if err != nil {
		return err
	}

	c := setup()
	defer c.Close()

	gateway := core.NewGateway(core.NewGate(c.oracle), c.connections, core.NewIdentifiers(config.Mongo.Legacy), c.registry)

	emitter := core.NewSimpleEmitter()
	gateway.SetBroadcaster(emitter)

	var recorders core.UsageRecorders
	if config.Auth.MultiUser() {
		recorders = append(recorders, core.NewKeyUsage(c.connections, config.Mongo.Users))
	}

	if config.Influxdb.Enabled {
		tsdb, err := timeseries.NewInfluxDb(&config.Influxdb)
		if err != nil {
			return errs.New("influxdb error: %s", err.Error())
		}
		defer tsdb.Close()

		recorders = append(recorders, timeseries.NewUsageRecorder(tsdb))
	}

	if len(recorders) > 0 {
		gateway.SetUsageRecorder(recorders)
	}

	if logger.Enabled("gin") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api.Init(engine, gateway, emitter, api.Options{
		Users:    config.Mongo.Users,
		Cookie:   config.Auth.Cookie,
		Registry: c.registry,
	})

	serv := server.NewServer(config.Server, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		logger.Yellow("kinome", "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := serv.Shutdown(shutdownCtx)
		if err != nil {
			logger.Red("kinome", "Shutdown: %s", err.Error())
		}
	}()

	err = serv.Run()

	// Let pending usage reach its recorders before they are closed.
	gateway.Wait()

	return err
}

func cmdPermission(cmd *cobra.Command, args []string) error {
	err := loadConfiguration()
	if err != nil {
		return err
	}

	c := setup()
	defer c.Close()

	permissions, err := c.oracle.Permission(cmd.Context(), userdb.Credentials{
		APIKey: apiKey,
		Cookie: session,
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	return encoder.Encode(permissions)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		logger.Red("kinome", "%s", err.Error())
		os.Exit(1)
	}
}
