package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/service"
	"github.com/aussiebroadwan/dealerdesk/pkg/httpx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

// APIHandler serves sample business endpoints guarded by the access token.
type APIHandler struct {
	AuthService *service.AuthService
}

// ProfileResponse is the body of GET /api/me.
type ProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName,omitempty"`
	Role        jwtx.Role `json:"role"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Order is a canned order line.
type Order struct {
	ID       string  `json:"id"`
	Retailer string  `json:"retailer"`
	Total    float64 `json:"total"`
	Status   string  `json:"status"`
}

var sampleOrders = []Order{
	{ID: "ord-1001", Retailer: "Corner Store", Total: 412.50, Status: "delivered"},
	{ID: "ord-1002", Retailer: "Main St Market", Total: 1280.00, Status: "pending"},
	{ID: "ord-1003", Retailer: "Harbour Deli", Total: 96.20, Status: "cancelled"},
}

// HandleMe serves GET /api/me.
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	u, err := h.AuthService.GetUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ProfileResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Permissions: u.Permissions,
		CreatedAt:   u.CreatedAt,
	})
}

// HandleOrders serves GET /api/orders.
func (h *APIHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": sampleOrders})
}

// HandleReports serves GET /api/reports.
func (h *APIHandler) HandleReports(w http.ResponseWriter, r *http.Request) {
	var total float64
	for _, o := range sampleOrders {
		if o.Status != "cancelled" {
			total += o.Total
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"orders":  len(sampleOrders),
		"revenue": total,
	})
}
