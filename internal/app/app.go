package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bastago/basta/internal/auth"
	"github.com/bastago/basta/internal/handlers"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/repository"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/internal/websocket"
	"github.com/bastago/basta/pkg/wordjudge"
)

// Options carries the externally configured settings
type Options struct {
	DBPath    string
	JWTSecret string
	BaseURL   string // external address for invite links; autodetected when empty
	Judge     wordjudge.Client
	Game      services.Config
}

// App holds all application dependencies
type App struct {
	log           logger.Logger
	handlers      *handlers.Handlers
	repo          *repository.Repository
	baseURL       string
	cancelSweeper context.CancelFunc
}

// New creates and initializes a new application instance
func New(log logger.Logger, opts Options) (*App, error) {
	repo, err := repository.New(opts.DBPath)
	if err != nil {
		return nil, err
	}

	tokenAuth := auth.New(opts.JWTSecret)
	timers := services.NewTimerScheduler(log)

	// The hub doubles as the Broadcaster every service publishes through
	hub := websocket.New(log, tokenAuth)

	validator := services.NewValidationService(log, opts.Judge)
	phase := services.NewPhaseService(log, repo, timers, validator, hub, opts.Game)
	rooms := services.NewRoomService(log, repo, phase, timers, hub, opts.Game)
	sessions := services.NewSessionService(log, repo, phase, hub, opts.Game)
	matching := services.NewMatchmakingService(log, rooms, hub, opts.Game)
	hub.Bind(sessions, rooms, matching)

	ctx, cancel := context.WithCancel(context.Background())
	rooms.StartSweeper(ctx)

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s", getPreferredIP(realNetworkProvider{}))
	}

	h := handlers.New(rooms, sessions, matching, repo, tokenAuth, hub, log, baseURL)

	return &App{
		log:           log,
		handlers:      h,
		repo:          repo,
		baseURL:       baseURL,
		cancelSweeper: cancel,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.cancelSweeper != nil {
		a.cancelSweeper()
	}
	a.repo.Close()
}

// Run starts the HTTP server
func (a *App) Run(addr string) error {
	a.log.Info("Server starting", "addr", addr, "base_url", a.baseURL)
	return http.ListenAndServe(addr, a.Router())
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

// realInterface wraps a real net.Interface
type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

// realNetworkProvider implements networkProvider using actual net package
type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IP address for LAN access.
// Prefers private network addresses (192.168.x.x, 10.x.x.x, 172.16-31.x.x).
// Falls back to localhost if no suitable address is found.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP

	for _, iface := range ifaces {
		// Skip down, loopback, and point-to-point interfaces
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			// Only consider IPv4 addresses
			if ip == nil || ip.To4() == nil {
				continue
			}

			// Skip loopback
			if ip.IsLoopback() {
				continue
			}

			candidates = append(candidates, ip)
		}
	}

	// Prefer private network addresses
	for _, ip := range candidates {
		ipStr := ip.String()
		if strings.HasPrefix(ipStr, "192.168.") ||
			strings.HasPrefix(ipStr, "10.") ||
			isPrivate172(ip) {
			return ipStr
		}
	}

	// Fall back to any non-loopback if no private address found
	if len(candidates) > 0 {
		return candidates[0].String()
	}

	return "localhost"
}

// isPrivate172 checks if IP is in 172.16.0.0/12 range
func isPrivate172(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31
	}
	return false
}
