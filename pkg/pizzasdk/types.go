package pizzasdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Wire helpers
// ============================================================================

// envelope is the {"message", "data"} wrapper around every /api response.
// Field matching is case-insensitive, so "Message" decodes as well.
type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Timestamp accepts the storefront's datetime encodings, which may omit the
// zone or be a bare date.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// ============================================================================
// Authentication
// ============================================================================

// TokenPair is the credential pair issued by login and renewal.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// RegisterRequest is the body of POST /auth/register and POST /api/create_admin.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// User is an account as seen by the storefront.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// DisplayName returns whichever name field the endpoint populated.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// ============================================================================
// Catalog
// ============================================================================

// Pizza is a menu item.
type Pizza struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Price       float64   `json:"price"`
	CreatedAt   Timestamp `json:"created_at"`
}

// PizzaInput creates or updates a pizza.
type PizzaInput struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gt=0"`
}

// Topping is an extra that can be added to a pizza.
type Topping struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt Timestamp `json:"created_at"`
}

// ToppingInput creates or updates a topping.
type ToppingInput struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`
}

// ============================================================================
// Coupons
// ============================================================================

// Coupon is a discount code. Discount is an absolute amount, not a percentage.
type Coupon struct {
	ID             int       `json:"id"`
	Code           string    `json:"code"`
	Discount       float64   `json:"discount"`
	ExpirationDate Timestamp `json:"expiration_date"`
	UsageLimit     int       `json:"usage_limit"`
	CreatedAt      Timestamp `json:"created_at"`
}

// AvailableCoupon is a coupon the signed-in user has not yet redeemed.
type AvailableCoupon struct {
	CouponID       int       `json:"coupon_id"`
	Code           string    `json:"code"`
	Discount       float64   `json:"discount"`
	ExpirationDate Timestamp `json:"expiration_date"`
}

// CouponInput creates or updates a coupon. ExpirationDate is YYYY-MM-DD.
type CouponInput struct {
	Code           string  `json:"code" validate:"required"`
	Discount       float64 `json:"discount" validate:"gt=0"`
	ExpirationDate string  `json:"expiration_date" validate:"required,datetime=2006-01-02"`
	UsageLimit     int     `json:"usage_limit" validate:"gte=0"`
}

// ============================================================================
// Cart
// ============================================================================

// Cart is the signed-in user's cart. DiscountedPrice is only meaningful when
// positive and below TotalPrice; see Cart.Payable.
type Cart struct {
	CartID          int        `json:"cart_id"`
	UserID          int        `json:"user_id"`
	CreatedAt       Timestamp  `json:"created_at"`
	Items           []CartItem `json:"items"`
	TotalPrice      float64    `json:"total_price"`
	DiscountedPrice float64    `json:"discounted_price"`
}

// CartItem is one pizza line. ItemPrice is the unit price of the pizza.
type CartItem struct {
	CartItemID int           `json:"cart_item_id"`
	PizzaID    int           `json:"pizza_id"`
	PizzaName  string        `json:"pizza_name"`
	Quantity   int           `json:"quantity"`
	ItemPrice  float64       `json:"item_price"`
	Toppings   []CartTopping `json:"toppings"`
}

// CartTopping is a topping on a cart line. Price is already multiplied by
// Quantity.
type CartTopping struct {
	ToppingID   int     `json:"topping_id"`
	ToppingName string  `json:"topping_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// AddToCartRequest is the body of POST /api/cart/items.
type AddToCartRequest struct {
	PizzaID  int                `json:"pizza_id" validate:"required,gt=0"`
	Quantity int                `json:"quantity" validate:"required,gt=0"`
	Toppings []ToppingSelection `json:"toppings" validate:"dive"`
}

// ToppingSelection picks a topping and how many portions of it.
type ToppingSelection struct {
	ToppingID int `json:"topping_id" validate:"required,gt=0"`
	Quantity  int `json:"quantity" validate:"required,gt=0"`
}

// CartItemRecord is the stored form of a cart line returned by cart mutations.
type CartItemRecord struct {
	ID       int `json:"id"`
	CartID   int `json:"cart_id"`
	PizzaID  int `json:"pizza_id"`
	Quantity int `json:"quantity"`
}

// ============================================================================
// Orders
// ============================================================================

// OrderStatus is the kitchen progress of an order.
type OrderStatus string

const (
	StatusPending        OrderStatus = "Pending"
	StatusReceived       OrderStatus = "Received"
	StatusPreparing      OrderStatus = "Preparing"
	StatusBaking         OrderStatus = "Baking"
	StatusReadyForPickup OrderStatus = "Ready for Pickup"
	StatusCompleted      OrderStatus = "Completed"
)

// orderProgression lists the statuses in the order the kitchen moves through them.
var orderProgression = []OrderStatus{
	StatusPending,
	StatusReceived,
	StatusPreparing,
	StatusBaking,
	StatusReadyForPickup,
	StatusCompleted,
}

// ParseOrderStatus matches s against the known statuses, ignoring case and
// surrounding space. An empty string is Pending.
func ParseOrderStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusPending, nil
	}
	for _, st := range orderProgression {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// String renders a missing status as Pending.
func (s OrderStatus) String() string {
	if s == "" {
		return string(StatusPending)
	}
	return string(s)
}

// IsTerminal reports whether the order will not progress further.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// Settable reports whether an admin may assign this status. Pending is only
// ever the absence of a status.
func (s OrderStatus) Settable() bool {
	return s != "" && s != StatusPending && s.index() >= 0
}

// Next returns the following status. Completed is its own successor.
func (s OrderStatus) Next() OrderStatus {
	i := s.index()
	if i < 0 || i == len(orderProgression)-1 {
		return s
	}
	return orderProgression[i+1]
}

func (s OrderStatus) index() int {
	if s == "" {
		return 0
	}
	for i, st := range orderProgression {
		if st == s {
			return i
		}
	}
	return -1
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = StatusPending
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	if raw == "" {
		*s = StatusPending
		return nil
	}
	*s = OrderStatus(raw)
	return nil
}

// Order is a placed order with its lines.
type Order struct {
	OrderID    int         `json:"order_id"`
	TotalPrice float64     `json:"total_price"`
	CreatedAt  Timestamp   `json:"created_at"`
	Status     OrderStatus `json:"status"`
	Items      []OrderItem `json:"items"`
}

// OrderItem is one pizza line of an order. ItemPrice is already multiplied by
// Quantity.
type OrderItem struct {
	ID                int            `json:"id"`
	PizzaID           int            `json:"pizza_id"`
	PizzaName         string         `json:"pizza_name"`
	Quantity          int            `json:"quantity"`
	ItemPrice         float64        `json:"item_price"`
	Toppings          []OrderTopping `json:"toppings"`
	TotalToppingPrice float64        `json:"total_topping_price"`
}

// OrderTopping is a topping on an order line. Price is already multiplied by
// Quantity.
type OrderTopping struct {
	OrderItemID int     `json:"order_item_id"`
	ToppingID   int     `json:"topping_id"`
	ToppingName string  `json:"topping_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// PlacedOrder is the order record returned by checkout.
type PlacedOrder struct {
	ID         int         `json:"id"`
	UserID     int         `json:"user_id"`
	Status     OrderStatus `json:"status"`
	TotalPrice float64     `json:"total_price"`
	CreatedAt  Timestamp   `json:"created_at"`
}

// OrderSummary is the short order form used in per-user admin listings.
type OrderSummary struct {
	ID         int         `json:"id"`
	TotalPrice float64     `json:"total_price"`
	Status     OrderStatus `json:"status"`
	CreatedAt  Timestamp   `json:"created_at"`
}

// AdminOrder is one entry of the all-orders admin listing.
type AdminOrder struct {
	Order struct {
		ID         int         `json:"id"`
		UserID     int         `json:"user_id"`
		TotalPrice float64     `json:"total_price"`
		CreatedAt  Timestamp   `json:"created_at"`
		Status     OrderStatus `json:"status"`
	} `json:"order"`
	OrderItems []struct {
		ID       int `json:"id"`
		PizzaID  int `json:"pizza_id"`
		Quantity int `json:"quantity"`
	} `json:"order_items"`
	OrderToppings []struct {
		OrderItemID int `json:"order_item_id"`
		ToppingID   int `json:"topping_id"`
		Quantity    int `json:"quantity"`
	} `json:"order_toppings"`
}

// StatusChange is the result of an admin status update.
type StatusChange struct {
	OrderID int         `json:"order_id"`
	Status  OrderStatus `json:"status"`
}
