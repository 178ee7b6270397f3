// ABOUTME: mDNS discovery of Sendspin servers
// ABOUTME: Browses _sendspin-server._tcp and emits websocket endpoints
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL builds the websocket endpoint for the discovered server
func (s *ServerInfo) URL() string {
	path := s.Path
	if path == "" {
		path = "/sendspin"
	}
	return fmt.Sprintf("ws://%s:%d%s", s.Host, s.Port, path)
}

// Browser searches the local network for Sendspin servers
type Browser struct {
	logger  *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// NewBrowser creates a browser; call Browse to start it
func NewBrowser(logger *zap.SugaredLogger) *Browser {
	ctx, cancel := context.WithCancel(context.Background())

	return &Browser{
		logger:  logger.Named("discovery"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Browse starts querying for servers in the background
func (b *Browser) Browse() {
	go b.browseLoop()
}

// Servers returns the channel of discovered servers
func (b *Browser) Servers() <-chan *ServerInfo {
	return b.servers
}

// Stop ends the browse loop
func (b *Browser) Stop() {
	b.cancel()
}

func (b *Browser) browseLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}

				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
					Path: pathFromTXT(entry.InfoFields),
				}

				b.logger.Infow("Discovered server",
					"name", server.Name, "host", server.Host, "port", server.Port)

				select {
				case b.servers <- server:
				case <-b.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: "_sendspin-server._tcp",
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			b.logger.Debugw("mDNS query failed", "error", err)
		}
		close(entries)
	}
}

func pathFromTXT(fields []string) string {
	for _, field := range fields {
		if strings.HasPrefix(field, "path=") {
			return strings.TrimPrefix(field, "path=")
		}
	}
	return ""
}
