package storefronttest

import (
	"io"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/httpx"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
)

// ============================================================================
// Pizzas
// ============================================================================

func (s *Server) handleListPizzas(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	httpx.WriteEnvelope(w, http.StatusOK, "Pizza geted successfully", sortedByID(s.pizzas, func(p pizzasdk.Pizza) int { return p.ID }))
}

func (s *Server) handleGetPizza(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pizzas[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Pizza not found")
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Pizza geted successfully", p)
}

func (s *Server) handleCreatePizza(w http.ResponseWriter, r *http.Request, _ *user) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid multipart body")
		return
	}
	name := r.FormValue("name")
	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if name == "" || err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "name and price are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		httpx.WriteDetail(w, http.StatusInternalServerError, "Image upload failed: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pizzas {
		if p.Name == name {
			httpx.WriteDetail(w, http.StatusBadRequest, "Pizza with this name already exists")
			return
		}
	}

	id := s.newIDLocked()
	p := pizzasdk.Pizza{
		ID:          id,
		Name:        name,
		Description: r.FormValue("description"),
		Price:       price,
		Image:       "/static/images/" + strings.ReplaceAll(strings.ToLower(name), " ", "_") + path.Ext(header.Filename),
		CreatedAt:   pizzasdk.Timestamp{Time: time.Now().UTC()},
	}
	s.pizzas[id] = p
	httpx.WriteEnvelope(w, http.StatusOK, "Pizza created successfully.", p)
}

func (s *Server) handleUpdatePizza(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in pizzasdk.PizzaInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pizzas[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Pizza not found")
		return
	}
	p.Name, p.Description, p.Price = in.Name, in.Description, in.Price
	s.pizzas[id] = p
	httpx.WriteEnvelope(w, http.StatusOK, "Pizza Updated successfully", p)
}

func (s *Server) handleDeletePizza(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pizzas[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Pizza not found")
		return
	}
	delete(s.pizzas, id)
	httpx.WriteEnvelope(w, http.StatusOK, "Pizza Deleted successfully", p)
}

// ============================================================================
// Toppings
// ============================================================================

func (s *Server) handleListToppings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	httpx.WriteEnvelope(w, http.StatusOK, "Toppings geted Successfull", sortedByID(s.toppings, func(t pizzasdk.Topping) int { return t.ID }))
}

func (s *Server) handleGetTopping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.toppings[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Topping not found")
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Topping geted Successfull", t)
}

func (s *Server) handleCreateTopping(w http.ResponseWriter, r *http.Request, _ *user) {
	var in pizzasdk.ToppingInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newIDLocked()
	t := pizzasdk.Topping{ID: id, Name: in.Name, Price: in.Price, CreatedAt: pizzasdk.Timestamp{Time: time.Now().UTC()}}
	s.toppings[id] = t
	httpx.WriteEnvelope(w, http.StatusOK, "Topping Created Successfull", t)
}

func (s *Server) handleUpdateTopping(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in pizzasdk.ToppingInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.toppings[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Topping not found")
		return
	}
	t.Name, t.Price = in.Name, in.Price
	s.toppings[id] = t
	httpx.WriteEnvelope(w, http.StatusOK, "Topping Updated Successfull", t)
}

func (s *Server) handleDeleteTopping(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.toppings[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Topping not found")
		return
	}
	delete(s.toppings, id)
	httpx.WriteEnvelope(w, http.StatusOK, "Topping Successfull", t)
}

// ============================================================================
// Coupons
// ============================================================================

func (s *Server) handleAvailableCoupons(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	out := []pizzasdk.AvailableCoupon{}
	for _, c := range sortedByID(s.coupons, func(c pizzasdk.Coupon) int { return c.ID }) {
		if s.redeemed[[2]int{u.ID, c.ID}] || c.ExpirationDate.Before(today) {
			continue
		}
		out = append(out, pizzasdk.AvailableCoupon{
			CouponID: c.ID, Code: c.Code, Discount: c.Discount, ExpirationDate: c.ExpirationDate,
		})
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Coupons retrieved successfully", out)
}

func (s *Server) handleAllCoupons(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	httpx.WriteEnvelope(w, http.StatusOK, "All coupons retrieved successfully", sortedByID(s.coupons, func(c pizzasdk.Coupon) int { return c.ID }))
}

func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request, _ *user) {
	var in pizzasdk.CouponInput
	if !decode(w, r, &in) {
		return
	}
	expires, err := time.Parse(time.DateOnly, in.ExpirationDate)
	if err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid expiration_date")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newIDLocked()
	c := pizzasdk.Coupon{
		ID: id, Code: in.Code, Discount: in.Discount, UsageLimit: in.UsageLimit,
		ExpirationDate: pizzasdk.Timestamp{Time: expires},
		CreatedAt:      pizzasdk.Timestamp{Time: time.Now().UTC()},
	}
	s.coupons[id] = c
	httpx.WriteEnvelope(w, http.StatusOK, "Coupon created successfully", c)
}

func (s *Server) handleUpdateCoupon(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in pizzasdk.CouponInput
	if !decode(w, r, &in) {
		return
	}
	expires, err := time.Parse(time.DateOnly, in.ExpirationDate)
	if err != nil {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid expiration_date")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Coupon not found")
		return
	}
	c.Code, c.Discount, c.UsageLimit = in.Code, in.Discount, in.UsageLimit
	c.ExpirationDate = pizzasdk.Timestamp{Time: expires}
	s.coupons[id] = c
	httpx.WriteEnvelope(w, http.StatusOK, "Coupon Updated Successfully", c)
}

func (s *Server) handleDeleteCoupon(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coupons[id]; !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Coupon not found")
		return
	}
	delete(s.coupons, id)
	for key := range s.redeemed {
		if key[1] == id {
			delete(s.redeemed, key)
		}
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Coupon Deleted Successfully", map[string]any{"id": id, "deleted": true})
}

// ============================================================================
// Users
// ============================================================================

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]pizzasdk.User, 0, len(s.users))
	for _, u := range sortedByID(s.users, func(u *user) int { return u.ID }) {
		out = append(out, pizzasdk.User{ID: u.ID, Username: u.Name, Email: u.Email, Role: u.Role})
	}
	httpx.WriteEnvelope(w, http.StatusOK, "All users fetched successfully", out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "User fetched successfully",
		pizzasdk.User{ID: u.ID, Username: u.Name, Email: u.Email, Role: u.Role})
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []map[string]any{}
	for _, o := range sortedByID(s.orders, func(o *order) int { return o.ID }) {
		if o.UserID != id {
			continue
		}
		out = append(out, map[string]any{
			"id":          o.ID,
			"total_price": o.Total,
			"status":      statusJSON(o.Status),
			"created_at":  o.CreatedAt,
		})
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Orders for user fetched successfully", out)
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request, _ *user) {
	var req pizzasdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	u, ok := s.register(w, req, pizzasdk.RoleAdmin)
	if !ok {
		return
	}
	httpx.WriteEnvelope(w, http.StatusOK, "Admin created successfully", u)
}

// sortedByID returns the map values ordered by id, for stable listings.
func sortedByID[V any](m map[int]V, id func(V) int) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b V) int { return id(a) - id(b) })
	return out
}

// statusJSON renders an unset status as null, as the storefront does.
func statusJSON(status string) any {
	if status == "" {
		return nil
	}
	return status
}
