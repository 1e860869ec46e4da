// Package storefronttest runs an in-process imitation of the storefront API
// for tests. It keeps its state in memory and exposes knobs for expiring
// credentials and holding renewals open.
package storefronttest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/httpx"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	detailInvalidToken = "Invalid or expired token"
	detailNotAdmin     = "Not authorized as admin"
)

type user struct {
	ID       int
	Name     string
	Email    string
	Hash     string // argon2id
	Role     string
}

type cartLine struct {
	ID       int
	PizzaID  int
	Quantity int
	Toppings map[int]int // topping id -> quantity
	order    []int       // topping ids in insertion order
}

type cart struct {
	ID       int
	UserID   int
	Lines    []*cartLine
	Discount float64 // absolute amount of the applied coupon, 0 when none
	CouponID int
}

type orderLine struct {
	ID       int
	PizzaID  int
	Quantity int
	Toppings []pizzasdk.ToppingSelection
}

type order struct {
	ID        int
	UserID    int
	Total     float64
	Status    string
	CreatedAt time.Time
	Lines     []orderLine
}

// Server is a fake storefront. Use New to start one.
type Server struct {
	*httptest.Server

	secret []byte

	mu       sync.Mutex
	nextID   int
	users    map[int]*user
	access   map[string]int // live access credential -> user id
	refresh  map[string]int // live refresh credential -> user id
	pizzas   map[int]pizzasdk.Pizza
	toppings map[int]pizzasdk.Topping
	coupons  map[int]pizzasdk.Coupon
	redeemed map[[2]int]bool // (user id, coupon id) present once used
	carts    map[int]*cart   // user id -> cart
	orders   map[int]*order
	authSeen []string // Authorization headers of /api requests, in arrival order

	// RotateRefresh makes renewals issue a new refresh credential. The real
	// storefront only issues a new access credential.
	RotateRefresh bool

	refreshCalls   atomic.Int32
	refreshHold    chan struct{}
	refreshEntered chan struct{}
}

// New starts a fake storefront and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:   []byte(cryptox.MustGenerateToken(cryptox.TokenSize256)),
		users:    make(map[int]*user),
		access:   make(map[string]int),
		refresh:  make(map[string]int),
		pizzas:   make(map[int]pizzasdk.Pizza),
		toppings: make(map[int]pizzasdk.Topping),
		coupons:  make(map[int]pizzasdk.Coupon),
		redeemed: make(map[[2]int]bool),
		carts:    make(map[int]*cart),
		orders:   make(map[int]*order),
	}
	s.Server = httptest.NewServer(slogx.HTTPMiddleware(testLogger(t))(s.routes()))
	t.Cleanup(s.Close)
	return s
}

// testLogger sends request logs to t.Log under -v and drops them otherwise.
func testLogger(t testing.TB) *slog.Logger {
	if !testing.Verbose() {
		return slogx.Discard()
	}
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Pizza Ordering System!"})
	})

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)

	mux.HandleFunc("GET /api/pizzas", s.handleListPizzas)
	mux.HandleFunc("GET /api/pizzas/{id}", s.handleGetPizza)
	mux.HandleFunc("POST /api/pizzas", s.admin(s.handleCreatePizza))
	mux.HandleFunc("PUT /api/pizzas/{id}", s.admin(s.handleUpdatePizza))
	mux.HandleFunc("DELETE /api/pizzas/{id}", s.admin(s.handleDeletePizza))

	mux.HandleFunc("GET /api/toppings", s.handleListToppings)
	mux.HandleFunc("GET /api/toppings/{id}", s.handleGetTopping)
	mux.HandleFunc("POST /api/toppings", s.admin(s.handleCreateTopping))
	mux.HandleFunc("PUT /api/toppings/{id}", s.admin(s.handleUpdateTopping))
	mux.HandleFunc("DELETE /api/toppings/{id}", s.admin(s.handleDeleteTopping))

	mux.HandleFunc("GET /api/coupons", s.authed(s.handleAvailableCoupons))
	mux.HandleFunc("GET /api/coupons/all", s.admin(s.handleAllCoupons))
	mux.HandleFunc("POST /api/coupons", s.admin(s.handleCreateCoupon))
	mux.HandleFunc("PUT /api/coupons/{id}", s.admin(s.handleUpdateCoupon))
	mux.HandleFunc("DELETE /api/coupons/{id}", s.admin(s.handleDeleteCoupon))

	mux.HandleFunc("GET /api/cart", s.authed(s.handleGetCart))
	mux.HandleFunc("POST /api/cart/items", s.authed(s.handleAddToCart))
	mux.HandleFunc("PUT /api/cart/items/{id}", s.authed(s.handleUpdateCartItem))
	mux.HandleFunc("DELETE /api/cart/items/{id}", s.authed(s.handleRemoveCartItem))
	mux.HandleFunc("POST /api/cart/coupons", s.authed(s.handleApplyCoupon))
	mux.HandleFunc("POST /api/cart/coupons/remove", s.authed(s.handleRemoveCoupon))
	mux.HandleFunc("POST /api/cart/checkout", s.authed(s.handleCheckout))

	mux.HandleFunc("GET /api/orders/my-orders", s.authed(s.handleMyOrders))
	mux.HandleFunc("GET /api/orders/all", s.admin(s.handleAllOrders))
	mux.HandleFunc("GET /api/orders/{id}", s.authed(s.handleGetOrder))
	mux.HandleFunc("PUT /api/orders/{id}/status", s.admin(s.handleUpdateOrderStatus))
	mux.HandleFunc("DELETE /api/orders/{id}", s.admin(s.handleDeleteOrder))

	mux.HandleFunc("GET /api/users", s.admin(s.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", s.admin(s.handleGetUser))
	mux.HandleFunc("GET /api/users/{id}/orders", s.admin(s.handleUserOrders))
	mux.HandleFunc("POST /api/create_admin", s.admin(s.handleCreateAdmin))

	return mux
}

// ============================================================================
// Test controls
// ============================================================================

// SeedUser adds an account and returns its id.
func (s *Server) SeedUser(name, email, password, role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name, email, password, role)
}

// SeedPizza adds a menu item and returns its id.
func (s *Server) SeedPizza(name, description string, price float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newIDLocked()
	s.pizzas[id] = pizzasdk.Pizza{
		ID: id, Name: name, Description: description, Price: price,
		Image:     "/static/images/" + strings.ReplaceAll(strings.ToLower(name), " ", "_") + ".png",
		CreatedAt: pizzasdk.Timestamp{Time: time.Now().UTC()},
	}
	return id
}

// SeedTopping adds a topping and returns its id.
func (s *Server) SeedTopping(name string, price float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newIDLocked()
	s.toppings[id] = pizzasdk.Topping{ID: id, Name: name, Price: price, CreatedAt: pizzasdk.Timestamp{Time: time.Now().UTC()}}
	return id
}

// SeedCoupon adds a coupon valid until expires and returns its id.
func (s *Server) SeedCoupon(code string, discount float64, expires time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newIDLocked()
	s.coupons[id] = pizzasdk.Coupon{
		ID: id, Code: code, Discount: discount, UsageLimit: 1,
		ExpirationDate: pizzasdk.Timestamp{Time: expires.UTC().Truncate(24 * time.Hour)},
		CreatedAt:      pizzasdk.Timestamp{Time: time.Now().UTC()},
	}
	return id
}

// ExpireAccess invalidates every issued access credential, so the next
// authenticated request of every client gets a 401.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every issued refresh credential.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// RefreshCalls is the number of renewal requests received.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// HoldRefresh makes renewal requests block until release is called. entered
// receives once per renewal request that reaches the hold.
func (s *Server) HoldRefresh() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold := make(chan struct{})
	in := make(chan struct{}, 64)
	s.refreshHold = hold
	s.refreshEntered = in

	var once sync.Once
	return in, func() { once.Do(func() { close(hold) }) }
}

// AuthHeaders returns the Authorization header of every /api request that
// carried one, in arrival order.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen...)
}

// SetOrderStatus moves an order to status.
func (s *Server) SetOrderStatus(orderID int, status pizzasdk.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.Status = string(status)
	}
}

// AdvanceOrder moves an order one status forward and returns the new status.
func (s *Server) AdvanceOrder(orderID int) pizzasdk.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ""
	}
	next := pizzasdk.OrderStatus(o.Status).Next()
	o.Status = string(next)
	return next
}

// ============================================================================
// Credentials
// ============================================================================

func (s *Server) newIDLocked() int {
	s.nextID++
	return s.nextID
}

func (s *Server) addUserLocked(name, email, password, role string) int {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		panic(fmt.Sprintf("storefronttest: hash password: %v", err))
	}
	id := s.newIDLocked()
	s.users[id] = &user{ID: id, Name: name, Email: email, Hash: hash, Role: role}
	return id
}

func (s *Server) issueAccessLocked(u *user) (string, error) {
	claims := jwt.MapClaims{
		"sub":      u.Email,
		"role":     u.Role,
		"username": u.Name,
		"exp":      time.Now().Add(2 * time.Hour).Unix(),
		"jti":      cryptox.MustGenerateToken(8),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.access[token] = u.ID
	return token, nil
}

func (s *Server) issueRefreshLocked(u *user) string {
	token := cryptox.MustGenerateToken(cryptox.TokenSize256)
	s.refresh[token] = u.ID
	return token
}

// userFor resolves the bearer credential of r, recording the header.
func (s *Server) userFor(r *http.Request) (*user, bool) {
	header := r.Header.Get("Authorization")

	s.mu.Lock()
	defer s.mu.Unlock()

	if header != "" {
		s.authSeen = append(s.authSeen, header)
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, false
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, false
	}

	id, ok := s.access[token]
	if !ok {
		return nil, false
	}
	u, ok := s.users[id]
	return u, ok
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			httpx.WriteDetail(w, http.StatusUnauthorized, detailInvalidToken)
			return
		}
		h(w, r, u)
	}
}

func (s *Server) admin(h authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *user) {
		if u.Role != pizzasdk.RoleAdmin {
			httpx.WriteDetail(w, http.StatusForbidden, detailNotAdmin)
			return
		}
		h(w, r, u)
	})
}

// ============================================================================
// Auth handlers
// ============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	s.mu.Lock()
	defer s.mu.Unlock()

	var found *user
	for _, u := range s.users {
		if u.Email == email && cryptox.VerifyPassword(password, u.Hash) == nil {
			found = u
			break
		}
	}
	if found == nil {
		httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	access, err := s.issueAccessLocked(found)
	if err != nil {
		httpx.WriteDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pizzasdk.LoginResponse{
		AccessToken:  access,
		RefreshToken: s.issueRefreshLocked(found),
		TokenType:    "bearer",
		Username:     found.Name,
		Role:         found.Role,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req pizzasdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	u, ok := s.register(w, req, pizzasdk.RoleUser)
	if !ok {
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "User registered successfully", u)
}

func (s *Server) register(w http.ResponseWriter, req pizzasdk.RegisterRequest, role string) (pizzasdk.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == req.Email {
			httpx.WriteDetail(w, http.StatusBadRequest, "Email already registered")
			return pizzasdk.User{}, false
		}
	}
	id := s.addUserLocked(req.Name, req.Email, req.Password, role)
	return pizzasdk.User{ID: id, Name: req.Name, Email: req.Email, Role: role}, true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	hold, entered := s.refreshHold, s.refreshEntered
	s.mu.Unlock()
	if hold != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.refresh[req.RefreshToken]
	u := s.users[id]
	if !ok || u == nil {
		slogx.FromContext(r.Context()).Debug("refresh rejected")
		httpx.WriteDetail(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	access, err := s.issueAccessLocked(u)
	if err != nil {
		httpx.WriteDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]string{"access_token": access, "token_type": "bearer"}
	if s.RotateRefresh {
		delete(s.refresh, req.RefreshToken)
		resp["refresh_token"] = s.issueRefreshLocked(u)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Helpers
// ============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
