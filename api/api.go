package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rcrowley/go-metrics"
	"gopkg.in/mgo.v2/bson"

	"github.com/kinome/kinome-toolbox/core"
	"github.com/kinome/kinome-toolbox/logger"
	"github.com/kinome/kinome-toolbox/userdb"
)

type (
	Message struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload"`
	}

	Status struct {
		Uptime  time.Duration `json:"uptime"`
		Clock   time.Time     `json:"clock"`
		Started time.Time     `json:"start"`
	}

	// Options configure the routes set up by Init.
	Options struct {
		// Users is the database used for health checks.
		Users string

		// Cookie is the name of the session cookie.
		Cookie string

		// Registry is exposed at /debug/metrics if set.
		Registry metrics.Registry
	}

	operation func(ctx context.Context, r *core.Request) (*core.Result, error)
)

var (
	startTime  = time.Now()
	wsupgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

func newRequest(c *gin.Context, options Options) *core.Request {
	r := &core.Request{
		Database:    c.Param("database"),
		Collection:  c.Param("collection"),
		DocID:       c.Param("doc_id"),
		All:         c.Query("all"),
		ContentType: c.GetHeader("Content-Type"),
		Host:        c.Request.Host,
		URL:         c.Request.URL.RequestURI(),
	}

	r.Credentials.APIKey = c.Query("api_key")
	if options.Cookie != "" {
		r.Credentials.Cookie, _ = c.Cookie(options.Cookie)
	}

	return r
}

// readBody parses a JSON body. Bodies of other types are left for the
// gateway to refuse.
func readBody(c *gin.Context, r *core.Request) error {
	if strings.ToLower(r.ContentType) != core.JSONContentType || c.Request.Body == nil {
		return nil
	}

	var body bson.M
	err := c.ShouldBindJSON(&body)
	if err != nil {
		return core.NewError(core.MalformedBody, err, "Could not parse JSON body.")
	}

	r.Body = body

	return nil
}

func fail(c *gin.Context, err error) {
	code, envelope := core.Normalize(err)

	logger.Red("api", "[%s %s] %d: %s", c.Request.Method, c.Request.URL, code, err.Error())
	c.AbortWithStatusJSON(code, envelope)
}

// caller adapts a gateway operation to gin. This is the only place failures
// are turned into responses.
func caller(options Options, op operation, withBody bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := newRequest(c, options)

		if withBody {
			err := readBody(c, r)
			if err != nil {
				fail(c, err)
				return
			}
		}

		result, err := op(c.Request.Context(), r)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// corsConfig allows credentialed requests from any origin.
var corsConfig = cors.Config{
	AllowOriginFunc: func(origin string) bool {
		return true
	},
	AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
	AllowHeaders:     []string{"Origin", "Content-Type"},
	AllowCredentials: true,
	MaxAge:           12 * time.Hour,
}

func wsHandler(c *gin.Context, emitter *core.SimpleEmitter, database string, collection string) {
	changes := emitter.Subscribe()
	defer emitter.Unsubscribe(changes)

	conn, err := wsupgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// We never expect anything from the client, but we must read to notice
	// that it went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	status := Status{
		Started: startTime,
	}

	for {
		select {
		case t := <-ticker.C:
			status.Clock = t
			status.Uptime = t.Sub(startTime)
			err = conn.WriteJSON(Message{Type: "status", Payload: status})
		case change := <-changes:
			if !change.Matches(database, collection) {
				continue
			}
			err = conn.WriteJSON(Message{Type: change.Type, Payload: change})
		case <-gone:
			return
		}

		if err != nil {
			return
		}
	}
}

func Init(router gin.IRouter, gateway *core.Gateway, emitter *core.SimpleEmitter, options Options) {
	router.Use(cors.New(corsConfig))

	router.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	router.GET("/health", func(c *gin.Context) {
		err := gateway.Ping(c.Request.Context(), options.Users)
		if err != nil {
			fail(c, err)
			return
		}

		c.String(http.StatusOK, "ok")
	})

	if options.Registry != nil {
		router.GET("/debug/metrics", func(c *gin.Context) {
			c.Header("Content-Type", "application/json")
			metrics.WriteJSONOnce(options.Registry, c.Writer)
		})
	}

	router.GET("/auth/:database/:collection", func(c *gin.Context) {
		permissions, err := gateway.Permission(c.Request.Context(), newRequest(c, options))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, permissions)
	})

	router.GET("/test", func(c *gin.Context) {
		permissions, err := gateway.Permission(c.Request.Context(), newRequest(c, options))
		if err != nil && core.KindOf(err) != core.Unauthenticated {
			fail(c, err)
			return
		}

		if permissions != nil && permissions.Email != "" {
			c.JSON(http.StatusOK, gin.H{
				"logged_in": true,
				"data":      []interface{}{permissions},
				"message":   "Based on Cookies this user is logged in.",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logged_in": false,
			"resp":      permissions,
			"message":   "Based on Cookies this user is not logged in.",
		})
	})

	router.GET("/changes/:database/:collection", func(c *gin.Context) {
		r := newRequest(c, options)

		capability, err := gateway.Authorize(c.Request.Context(), r, userdb.Read)
		if err != nil {
			fail(c, err)
			return
		}

		logger.Green("api", "[%s %s] Change feed opened for %s", c.Request.Method, c.Request.URL, capability.ID.Hex())
		wsHandler(c, emitter, r.Database, r.Collection)
	})

	{
		v2 := router.Group("/2.0.0")

		v2.GET("/:database/:collection", caller(options, gateway.List, false))
		v2.POST("/:database/:collection", caller(options, gateway.Insert, true))

		v2.GET("/:database/:collection/:doc_id", caller(options, gateway.Get, false))
		v2.PATCH("/:database/:collection/:doc_id", caller(options, gateway.Patch, true))
	}
}
