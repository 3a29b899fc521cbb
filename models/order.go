package models

import "time"

const (
	ShipmentPreparing = "Preparing"
	ShipmentDelivered = "Delivered"

	PaymentPending = "Pending"
	PaymentPaid    = "Paid"

	PaymentMethodCOD = "COD"
)

type CartItem struct {
	ProductID     int     `json:"product_id"`
	Name          string  `json:"name"`
	BasePrice     float64 `json:"base_price"`
	Quantity      int     `json:"quantity"`
	ImageURL      string  `json:"image_url"`
	StockQuantity int     `json:"stock_quantity"`
	SellerID      int     `json:"seller_id"`
	ShopName      string  `json:"shop_name"`
}

type AddToCartRequest struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type CheckoutItem struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type CheckoutRequest struct {
	PaymentMethod string         `json:"paymentMethod"`
	AddressID     int            `json:"addressId"`
	Items         []CheckoutItem `json:"items"`
}

type CheckoutResponse struct {
	Message  string `json:"message"`
	OrderIDs []int  `json:"order_ids"`
}

type OrderItem struct {
	OrderDetailID int     `json:"order_detail_id"`
	ProductID     int     `json:"product_id"`
	ProductName   string  `json:"product_name"`
	ImageURL      string  `json:"image_url"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	ShopName      string  `json:"shop_name"`
	IsRated       bool    `json:"is_rated"`
}

type OrderHistoryEntry struct {
	OrderID        int         `json:"order_id"`
	OrderDate      time.Time   `json:"order_date"`
	FinalTotal     float64     `json:"final_total"`
	ShipStatus     string      `json:"ship_status"`
	TrackingNumber string      `json:"tracking_number"`
	PayMethod      string      `json:"pay_method"`
	PayStatus      string      `json:"pay_status"`
	Items          []OrderItem `json:"items"`
}

// OrderEvent is published to Kafka after a checkout commits, one per
// seller-order.
type OrderEvent struct {
	OrderID    int     `json:"order_id"`
	BuyerID    int     `json:"buyer_id"`
	SellerID   int     `json:"seller_id"`
	ItemCount  int     `json:"item_count"`
	FinalTotal float64 `json:"final_total"`
	PayStatus  string  `json:"pay_status"`
	EventType  string  `json:"event_type"`
}

type AnalyticsRow struct {
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	UnitsSold int     `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
}

type AnalyticsResponse struct {
	Meta struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"meta"`
	Data []AnalyticsRow `json:"data"`
}
