package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"strconv"
	"sync"

	"github.com/zeebo/errs"

	"github.com/kinome/kinome-toolbox/configuration"
	"github.com/kinome/kinome-toolbox/logger"
)

type (
	// Server serves a handler over http and/or https as configured.
	Server struct {
		config  configuration.ServerConfiguration
		handler http.Handler

		lock    sync.Mutex
		closed  bool
		servers []*http.Server
	}
)

var tlsConfig = &tls.Config{
	MinVersion: tls.VersionTLS12,
	CipherSuites: []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	},
}

func NewServer(config configuration.ServerConfiguration, handler http.Handler) *Server {
	return &Server{
		config:  config,
		handler: handler,
	}
}

func address(bind string, port int) string {
	return bind + ":" + strconv.Itoa(port)
}

// Run listens on every enabled listener and returns when the first of them
// fails or all of them are shut down. Calling Shutdown before Run makes Run
// return immediately.
func (s *Server) Run() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}

	var listeners []func() error

	if s.config.Http.Enabled {
		server := &http.Server{
			Addr:    address(s.config.Http.Bind, s.config.Http.Port),
			Handler: s.handler,
		}
		s.servers = append(s.servers, server)
		listeners = append(listeners, func() error { return s.listenAndServe(server) })
	}

	if s.config.Https.Enabled {
		server := &http.Server{
			Addr:      address(s.config.Https.Bind, s.config.Https.Port),
			Handler:   s.handler,
			TLSConfig: tlsConfig,
		}
		s.servers = append(s.servers, server)
		listeners = append(listeners, func() error { return s.listenAndServeTLS(server) })
	}
	s.lock.Unlock()

	var wg sync.WaitGroup
	errors := make(chan error, len(listeners))

	for _, listen := range listeners {
		wg.Add(1)
		go func(listen func() error) {
			defer wg.Done()
			errors <- listen()
		}(listen)
	}

	go func() {
		wg.Wait()
		close(errors)
	}()

	for err := range errors {
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) listenAndServe(server *http.Server) error {
	logger.Yellow("server", "Listening for http at %s", server.Addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Red("server", "ListenAndServe(%s): %s", server.Addr, err.Error())
		return errs.Wrap(err)
	}

	return nil
}

func (s *Server) listenAndServeTLS(server *http.Server) error {
	logger.Yellow("server", "Listening for https at %s", server.Addr)
	err := server.ListenAndServeTLS(s.config.Https.CertPath, s.config.Https.KeyPath)
	if err != nil && err != http.ErrServerClosed {
		logger.Red("server", "ListenAndServeTLS(%s): %s", server.Addr, err.Error())
		return errs.Wrap(err)
	}

	return nil
}

// Shutdown stops all listeners, waiting for active requests until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	s.closed = true
	servers := s.servers
	s.lock.Unlock()

	var group errs.Group
	for _, server := range servers {
		group.Add(server.Shutdown(ctx))
	}

	return group.Err()
}
