package models

import "time"

const (
	ConditionNew  = "New"
	ConditionUsed = "Used"
)

type Product struct {
	ID             int       `json:"id"`
	SellerID       int       `json:"seller_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	BasePrice      float64   `json:"base_price"`
	StockQuantity  int       `json:"stock_quantity"`
	Weight         float64   `json:"weight"`
	Dimensions     string    `json:"dimensions"`
	ConditionState string    `json:"condition_state"`
	IsPreOrder     bool      `json:"is_pre_order"`
	ImageURL       string    `json:"image_url"`
	Rating         float64   `json:"rating"`
	ReviewCount    int       `json:"review_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateProductRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"required"`
	Stock       int     `json:"stock"`
	Weight      float64 `json:"weight"`
	Dimensions  string  `json:"dimensions"`
	Condition   string  `json:"condition"`
	IsPreOrder  bool    `json:"isPreOrder"`
	Image       string  `json:"image"`
}

type UpdateProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	Weight      *float64 `json:"weight"`
	Dimensions  string   `json:"dimensions"`
	Condition   string   `json:"condition"`
	IsPreOrder  *bool    `json:"isPreOrder"`
	Image       string   `json:"image"`
}

type ReviewRequest struct {
	ProductID     int `json:"productId"`
	OrderDetailID int `json:"orderDetailId"`
	Rating        int `json:"rating"`
}

// SearchResult is the public product listing row, including the shop name.
type SearchResult struct {
	ID             int     `json:"id"`
	SellerID       int     `json:"seller_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	BasePrice      float64 `json:"base_price"`
	StockQuantity  int     `json:"stock_quantity"`
	ConditionState string  `json:"condition_state"`
	ImageURL       string  `json:"image_url"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	ShopName       string  `json:"shop_name"`
}
