// internal/demoshop/shop.go

// Package demoshop is the storefront the suite runs against. It is
// deliberately awkward to automate: the cart badge updates late, a
// newsletter modal interrupts browsing, checkout opens in a new tab, and
// selected routes fail or throttle on purpose. The resilience helpers in
// internal/retry, internal/browser/resolve and internal/browser/recovery
// exist to absorb exactly these behaviors.
package demoshop

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/trolleyhq/trolley/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Shop is the demo storefront server.
type Shop struct {
	cfg     config.ShopConfig
	logger  *zap.Logger
	catalog *Catalog
	carts   cartCodec
	flaky   *flakyGate
	tmpl    map[string]*template.Template

	mu         sync.Mutex
	server     *http.Server
	listener   net.Listener
	baseURL    string
	accessFile *os.File
}

// New creates a shop from configuration. When no JWT secret is configured a
// random one is generated, which is fine for a shop that only lives for one
// suite run.
func New(cfg config.ShopConfig, logger *zap.Logger) (*Shop, error) {
	tmpl, err := newTemplates()
	if err != nil {
		return nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate cart secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
	}

	return &Shop{
		cfg:     cfg,
		logger:  logger.Named("demoshop"),
		catalog: NewCatalog(defaultCatalog()),
		carts:   cartCodec{secret: []byte(secret)},
		flaky:   newFlakyGate(cfg.FlakyFailures),
		tmpl:    tmpl,
	}, nil
}

// Start binds the listener and serves in the background. It returns once the
// address is bound, so BaseURL is valid immediately after.
func (s *Shop) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("shop already started")
	}

	var accessOut io.Writer = io.Discard
	if s.cfg.AccessLog != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.AccessLog), 0o755); err != nil {
			return fmt.Errorf("failed to create access log directory: %w", err)
		}
		f, err := os.OpenFile(s.cfg.AccessLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open access log: %w", err)
		}
		s.accessFile = f
		accessOut = f
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	s.listener = ln
	s.baseURL = "http://" + ln.Addr().String()

	server := &http.Server{
		Handler:      s.routes(accessOut),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     zap.NewStdLog(s.logger.Named("http_server")),
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.server = server

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Shop server stopped unexpectedly.", zap.Error(err))
		}
	}()

	s.logger.Info("Demo shop listening.", zap.String("base_url", s.baseURL))
	return nil
}

// BaseURL returns the root URL of the running shop.
func (s *Shop) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// AccessLogPath returns the access log location, or empty when disabled.
func (s *Shop) AccessLogPath() string {
	return s.cfg.AccessLog
}

// Shutdown drains in-flight requests and closes the access log. Safe to call
// when the shop never started.
func (s *Shop) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	file := s.accessFile
	s.server = nil
	s.accessFile = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	if file != nil {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("shop shutdown failed: %w", err)
	}
	s.logger.Info("Demo shop stopped.")
	return nil
}

func (s *Shop) routes(accessOut io.Writer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /products", s.handleListing)
	mux.HandleFunc("GET /products/{id}", s.handleProduct)
	mux.HandleFunc("POST /cart/add", s.handleCartAdd)
	mux.HandleFunc("POST /cart/remove", s.handleCartRemove)
	mux.Handle("GET /cart", s.flaky.wrap(http.HandlerFunc(s.handleCart)))
	mux.Handle("GET /api/cart/count", s.flaky.wrap(http.HandlerFunc(s.handleCartCount)))
	mux.HandleFunc("GET /checkout", s.handleCheckout)
	mux.HandleFunc("POST /checkout/confirm", s.handleConfirm)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	var handler http.Handler = mux
	if s.cfg.RatePerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.Burst)
		handler = rateLimit(limiter, handler)
	}
	return accessLog(accessOut, s.logger, handler)
}

// render executes a page template into a buffer first, so a template error
// still produces a clean 500 instead of a half-written page.
func (s *Shop) render(w http.ResponseWriter, name string, data pageData) {
	data.CartDelayMS = s.cfg.CartDelay.Milliseconds()
	data.ModalDelayMS = s.cfg.ModalDelay.Milliseconds()

	var buf bytes.Buffer
	if err := s.tmpl[name].Execute(&buf, data); err != nil {
		s.logger.Error("Template render failed.", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Shop) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, "home", pageData{Title: "Home"})
}

func (s *Shop) handleListing(w http.ResponseWriter, r *http.Request) {
	s.render(w, "listing", pageData{Title: "Shop", Products: s.catalog.All()})
}

func (s *Shop) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.render(w, "product", pageData{Title: p.Name, Product: p})
}

func (s *Shop) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	id := r.FormValue("product_id")
	if _, ok := s.catalog.Get(id); !ok {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}
	qty, err := strconv.Atoi(r.FormValue("qty"))
	if err != nil || qty < 1 {
		qty = 1
	}

	items := s.carts.decode(r)
	items[id] += qty
	if err := s.carts.encode(w, items); err != nil {
		s.logger.Error("Failed to write cart cookie.", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, localPath(r.Referer(), "/products"), http.StatusSeeOther)
}

func (s *Shop) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	items := s.carts.decode(r)
	delete(items, r.FormValue("product_id"))
	if err := s.carts.encode(w, items); err != nil {
		s.logger.Error("Failed to write cart cookie.", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Shop) handleCart(w http.ResponseWriter, r *http.Request) {
	items := s.carts.decode(r)

	rows := make([]cartRow, 0, len(items))
	total := 0
	// Catalog order keeps the rows stable across reloads.
	for _, p := range s.catalog.All() {
		qty := items[p.ID]
		if qty <= 0 {
			continue
		}
		subtotal := qty * p.PriceCents
		rows = append(rows, cartRow{Product: p, Qty: qty, Subtotal: subtotal})
		total += subtotal
	}

	s.render(w, "cart", pageData{Title: "Your cart", Rows: rows, Total: total})
}

func (s *Shop) handleCartCount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	resp, err := json.Marshal(map[string]int{"count": cartCount(s.carts.decode(r))})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write(resp)
}

func (s *Shop) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.render(w, "checkout", pageData{Title: "Checkout"})
}

func (s *Shop) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = "friend"
	}

	items := s.carts.decode(r)
	total := 0
	for id, qty := range items {
		if p, ok := s.catalog.Get(id); ok {
			total += qty * p.PriceCents
		}
	}

	s.carts.clear(w)
	s.render(w, "confirmation", pageData{
		Title:   "Order confirmed",
		Name:    name,
		OrderID: uuid.NewString(),
		Total:   total,
	})
}

func (s *Shop) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// localPath reduces a referer to a same-site path, falling back when the
// referer is absent or unparseable.
func localPath(referer, fallback string) string {
	if referer == "" {
		return fallback
	}
	u, err := url.Parse(referer)
	if err != nil || u.Path == "" {
		return fallback
	}
	return u.RequestURI()
}
