package models

import "time"

// User account statuses. Banned users are rejected at login.
const (
	StatusActive   = "Active"
	StatusBanned   = "Banned"
	StatusInactive = "Inactive"
)

func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusBanned || s == StatusInactive
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Avatar       string    `json:"avatar,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type Buyer struct {
	UserID          int     `json:"user_id"`
	CoinBalance     float64 `json:"coin_balance"`
	MembershipLevel string  `json:"membership_level"`
}

type Seller struct {
	UserID          int     `json:"user_id"`
	ShopName        string  `json:"shop_name"`
	ShopDescription string  `json:"shop_description"`
	Rating          float64 `json:"rating"`
	ResponseRate    int     `json:"response_rate"`
}

type Address struct {
	UserID       int    `json:"user_id"`
	AddressID    int    `json:"address_id"`
	ReceiverName string `json:"receiver_name"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	District     string `json:"district"`
	Street       string `json:"street"`
	IsDefault    bool   `json:"is_default"`
	AddressType  string `json:"address_type"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginUser struct {
	ID       int            `json:"id"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Role     Role           `json:"role"`
	Details  map[string]any `json:"details"`
}

type LoginResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    LoginUser `json:"user"`
}

type UpdateStatusRequest struct {
	UserID int    `json:"userId"`
	Status string `json:"status"`
}

type AddressInput struct {
	ReceiverName string `json:"receiverName"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	District     string `json:"district"`
	Street       string `json:"street"`
	AddressType  string `json:"addressType"`
}

type UpdateProfileRequest struct {
	Avatar  string        `json:"avatar"`
	Phone   string        `json:"phone"`
	Address *AddressInput `json:"address"`
}

type BecomeSellerRequest struct {
	ShopName        string `json:"shopName"`
	ShopDescription string `json:"shopDescription"`
}
