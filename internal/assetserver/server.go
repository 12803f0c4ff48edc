// Package assetserver streams stored audio files to playback devices.
//
// Devices fetch GET /tts?f=<absolute path>. A path is served only when it is
// exactly <root>/<category dir>/<name>.mp3; anything else is answered with a
// fixed "NOT ALLOWED" body before the filesystem is consulted.
package assetserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/assets"
)

// HTTP surface.
const (
	AssetPath        = "/tts"
	FileQueryParam   = "f"
	DownloadFilename = "tts.mp3"
	BodyNotAllowed   = "NOT ALLOWED"
	BodyNotFound     = "File not found"

	// AutoDiscover asks the server to pick the first non-loopback IPv4 address.
	AutoDiscover = "AUTODISCOVER"
)

// Timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 5 * time.Second
)

const (
	contentTypeMPEG  = "audio/mpeg"
	contentTypePlain = "text/plain; charset=utf-8"
	fallbackHost     = "127.0.0.1"
)

// Log formats.
const (
	logFmtNotAllowed      = "Rejected asset request for %q: %v"
	logFmtNotFound        = "Asset not found: %s"
	logFmtStreamFailed    = "Streaming %s failed after %d bytes: %v"
	logFmtServed          = "Served %s (%d bytes) to %s"
	logFmtListening       = "Asset server listening on %s"
	logFmtBindFailed      = "Asset server could not bind %s, playback disabled: %v"
	logFmtServeFailed     = "Asset server stopped with error: %v"
	logFmtHostDiscovered  = "Playback host address discovered: %s"
	logFmtHostUnavailable = "Unable to discover a host address, using %s: %v"
)

var (
	// ErrNotAllowed indicates a path outside the managed tree.
	ErrNotAllowed = errors.New("not allowed")
	// ErrNotFound indicates a contained path with no regular file behind it.
	ErrNotFound = errors.New("file not found")
	// ErrBind indicates the listener could not be opened.
	ErrBind = errors.New("asset server bind failed")
	// ErrAlreadyStarted indicates a second Start call.
	ErrAlreadyStarted = errors.New("asset server already started")
	// ErrNoHostAddress indicates that no non-loopback IPv4 address exists.
	ErrNoHostAddress = errors.New("no non-loopback IPv4 address found")
	// ErrRootNotAbsolute indicates a server configured with a relative root.
	ErrRootNotAbsolute = errors.New("asset root must be an absolute path")
)

// Config describes where the server listens and how it advertises itself.
type Config struct {
	// Root is the storage root owned by assets.Store.
	Root string
	// HostAddress is the address written into playback URLs, or AutoDiscover.
	HostAddress string
	// Port to listen on; 0 picks a free port.
	Port int
}

// Server is the read-only HTTP view of the asset tree.
type Server struct {
	root        string
	hostAddress string
	log         *logger.Logger

	mu         sync.Mutex
	port       int
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// New validates cfg and resolves the advertised host address.
func New(cfg Config, log *logger.Logger) (*Server, error) {
	if !filepath.IsAbs(cfg.Root) {
		return nil, fmt.Errorf("%w: %q", ErrRootNotAbsolute, cfg.Root)
	}

	host := strings.TrimSpace(cfg.HostAddress)
	if host == "" || strings.EqualFold(host, AutoDiscover) {
		discovered, err := DiscoverHostAddress()
		if err != nil {
			log.Warn(logFmtHostUnavailable, fallbackHost, err)

			discovered = fallbackHost
		} else {
			log.Info(logFmtHostDiscovered, discovered)
		}

		host = discovered
	}

	return &Server{
		root:        filepath.Clean(cfg.Root),
		hostAddress: host,
		port:        cfg.Port,
		log:         log,
	}, nil
}

// Resolve applies the containment check to a requested path and returns the
// file to stream. Non-conforming paths fail with ErrNotAllowed before any
// filesystem access; conforming but missing paths fail with ErrNotFound.
func (s *Server) Resolve(requested string) (string, error) {
	if requested == "" || strings.ContainsRune(requested, 0) || !filepath.IsAbs(requested) {
		return "", fmt.Errorf("%w: not an absolute path", ErrNotAllowed)
	}

	cleaned := filepath.Clean(requested)

	if filepath.Ext(cleaned) != assets.AudioExtension {
		return "", fmt.Errorf("%w: extension must be %s", ErrNotAllowed, assets.AudioExtension)
	}

	if !s.isContained(s.root, cleaned) {
		return "", fmt.Errorf("%w: outside %s", ErrNotAllowed, s.root)
	}

	resolvedRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}

	resolved, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}

	if filepath.Ext(resolved) != assets.AudioExtension || !s.isContained(resolvedRoot, resolved) {
		return "", fmt.Errorf("%w: %s links outside %s", ErrNotAllowed, cleaned, s.root)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}

	return resolved, nil
}

// isContained reports whether path is exactly root/<category dir>/<visible name>.
func (s *Server) isContained(root, path string) bool {
	categoryDir := filepath.Dir(path)
	name := filepath.Base(path)

	return filepath.Dir(categoryDir) == root &&
		assets.IsCategoryDir(filepath.Base(categoryDir)) &&
		!strings.HasPrefix(name, ".")
}

// Handler returns the HTTP handler serving AssetPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AssetPath, s.serveAsset)

	return mux
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get(FileQueryParam)

	path, err := s.Resolve(requested)
	if err != nil {
		s.writeFailure(w, requested, err)

		return
	}

	file, err := os.Open(path)
	if err != nil {
		s.writeFailure(w, requested, fmt.Errorf("%w: %w", ErrNotFound, err))

		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.writeFailure(w, requested, fmt.Errorf("%w: %w", ErrNotFound, err))

		return
	}

	header := w.Header()
	header.Set("Content-Type", contentTypeMPEG)
	header.Set("Content-Disposition", "attachment; filename="+DownloadFilename)
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	written, err := io.Copy(w, file)
	if err != nil {
		// Headers are gone; the device is expected to request again.
		s.log.Error(logFmtStreamFailed, path, written, err)

		return
	}

	s.log.Info(logFmtServed, path, written, r.RemoteAddr)
}

func (s *Server) writeFailure(w http.ResponseWriter, requested string, err error) {
	status, body := http.StatusNotFound, BodyNotFound

	if errors.Is(err, ErrNotAllowed) {
		status, body = http.StatusForbidden, BodyNotAllowed
		s.log.Warn(logFmtNotAllowed, requested, err)
	} else {
		s.log.Warn(logFmtNotFound, requested)
	}

	w.Header().Set("Content-Type", contentTypePlain)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// Start binds the listener synchronously and serves in the background. A bind
// failure is logged and returned wrapped in ErrBind.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	address := net.JoinHostPort("", strconv.Itoa(s.port))

	var listenConfig net.ListenConfig

	listener, err := listenConfig.Listen(ctx, "tcp", address)
	if err != nil {
		s.log.Error(logFmtBindFailed, address, err)

		return fmt.Errorf("%w: %s: %w", ErrBind, address, err)
	}

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	s.listener = listener
	s.done = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.log.Info(logFmtListening, listener.Addr())

	go func(server *http.Server, done chan struct{}) {
		defer close(done)

		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Error(logFmtServeFailed, serveErr)
		}
	}(s.httpServer, s.done)

	return nil
}

// Run starts the server and blocks until ctx is done, then shuts it down.
func (s *Server) Run(ctx context.Context) error {
	err := s.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for in-flight streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server, done := s.httpServer, s.done
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("asset server shutdown: %w", err)
	}

	<-done

	return nil
}

// Addr is the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// PlaybackURL is the URL a playback device uses to fetch path.
func (s *Server) PlaybackURL(path string) string {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	query := url.Values{FileQueryParam: []string{path}}

	return (&url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(s.hostAddress, strconv.Itoa(port)),
		Path:     AssetPath,
		RawQuery: query.Encode(),
	}).String()
}

// DiscoverHostAddress returns the first non-loopback IPv4 address of an up interface.
func DiscoverHostAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, addrErr := iface.Addrs()
		if addrErr != nil {
			continue
		}

		for _, addr := range addrs {
			if ip := ipv4Of(addr); ip != nil && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
				return ip.String(), nil
			}
		}
	}

	return "", ErrNoHostAddress
}

func ipv4Of(addr net.Addr) net.IP {
	var ip net.IP

	switch value := addr.(type) {
	case *net.IPNet:
		ip = value.IP
	case *net.IPAddr:
		ip = value.IP
	}

	return ip.To4()
}
