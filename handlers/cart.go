package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"keycraft-api/cache"
	"keycraft-api/kafka"
	"keycraft-api/middleware"
	"keycraft-api/models"
	"keycraft-api/orders"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	shipmentCarrier  = "SPX"
	shippingFee      = 15.00
	deliveryEstimate = 3 * 24 * time.Hour
	orderEventsTopic = "order_events"
)

type CartHandler struct {
	db          *sql.DB
	producer    sarama.SyncProducer
	redisClient *redis.Client
	totals      orders.TotalsCalculator
	logger      *zap.Logger
}

func NewCartHandler(db *sql.DB, producer sarama.SyncProducer, redisClient *redis.Client, totals orders.TotalsCalculator, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		db:          db,
		producer:    producer,
		redisClient: redisClient,
		totals:      totals,
		logger:      logger,
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetCart")
	defer span.End()

	userID := middleware.GetUserID(c)

	rows, err := h.db.QueryContext(ctx,
		`SELECT c.product_id, p.name, p.base_price, c.quantity, COALESCE(p.image_url, ''), p.stock_quantity, p.seller_id, s.shop_name
		 FROM cart_items c
		 JOIN products p ON c.product_id = p.id
		 JOIN sellers s ON p.seller_id = s.user_id
		 WHERE c.buyer_id = $1`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.BasePrice, &item.Quantity,
			&item.ImageURL, &item.StockQuantity, &item.SellerID, &item.ShopName); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan cart item", zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("cart.items", len(items)))
	c.JSON(http.StatusOK, items)
}

// AddToCart upserts on (buyer_id, product_id); the combined quantity is
// re-validated against current stock as a whole.
func (h *CartHandler) AddToCart(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "AddToCart")
	defer span.End()

	userID := middleware.GetUserID(c)

	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ProductID <= 0 || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product or quantity."})
		return
	}

	var sellerID, stock int
	var name string
	err := h.db.QueryRowContext(ctx,
		"SELECT seller_id, stock_quantity, name FROM products WHERE id = $1",
		req.ProductID,
	).Scan(&sellerID, &stock, &name)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found."})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if sellerID == userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot add your own product to the cart."})
		return
	}

	if req.Quantity > stock {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Not enough stock. Only %d left.", stock)})
		return
	}

	var existingQuantity int
	err = h.db.QueryRowContext(ctx,
		"SELECT quantity FROM cart_items WHERE buyer_id = $1 AND product_id = $2",
		userID, req.ProductID,
	).Scan(&existingQuantity)

	switch {
	case err == nil:
		newQuantity := existingQuantity + req.Quantity
		if newQuantity > stock {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Total quantity in cart exceeds available stock."})
			return
		}
		if _, err := h.db.ExecContext(ctx,
			"UPDATE cart_items SET quantity = $1 WHERE buyer_id = $2 AND product_id = $3",
			newQuantity, userID, req.ProductID,
		); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to update cart item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	case err == sql.ErrNoRows:
		if _, err := h.db.ExecContext(ctx,
			"INSERT INTO cart_items (buyer_id, product_id, quantity) VALUES ($1, $2, $3)",
			userID, req.ProductID, req.Quantity,
		); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to insert cart item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	default:
		span.RecordError(err)
		h.logger.Error("Failed to read cart item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(
		attribute.Int("product.id", req.ProductID),
		attribute.Int("cart.quantity", req.Quantity),
	)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Added %d x %s to cart!", req.Quantity, name)})
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "RemoveFromCart")
	defer span.End()

	userID := middleware.GetUserID(c)

	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	result, err := h.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE buyer_id = $1 AND product_id = $2",
		userID, productID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to remove cart item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found in cart."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart."})
}

// checkoutLine is one resolved cart row entering the order assembly.
type checkoutLine struct {
	ProductID int
	BasePrice float64
	Quantity  int
	SellerID  int
}

// Checkout converts the buyer's cart (or a named subset) into orders, one
// per distinct seller. Each seller-order gets its own shipment and payment.
// The whole checkout runs in a single transaction: any failure anywhere rolls
// back every partition.
func (h *CartHandler) Checkout(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "Checkout")
	defer span.End()

	userID := middleware.GetUserID(c)

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.PaymentMethod == "" || req.AddressID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing payment method or address."})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin checkout transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Checkout Failed"})
		return
	}
	defer tx.Rollback()

	lines, err := h.resolveLines(ctx, tx, userID, req.Items)
	if err != nil {
		span.RecordError(err)
		middleware.RecordCheckoutFailed()
		h.logger.Error("Failed to resolve cart items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Checkout Failed"})
		return
	}

	if len(lines) == 0 {
		middleware.RecordCheckoutFailed()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty or items not found."})
		return
	}

	// One order per seller, processed in ascending seller id.
	partitions := make(map[int][]checkoutLine)
	for _, line := range lines {
		partitions[line.SellerID] = append(partitions[line.SellerID], line)
	}
	sellerIDs := make([]int, 0, len(partitions))
	for sellerID := range partitions {
		sellerIDs = append(sellerIDs, sellerID)
	}
	sort.Ints(sellerIDs)

	now := time.Now()
	payStatus := models.PaymentPaid
	var paidAt sql.NullTime
	if req.PaymentMethod == models.PaymentMethodCOD {
		payStatus = models.PaymentPending
	} else {
		paidAt = sql.NullTime{Time: now, Valid: true}
	}

	orderIDs := []int{}
	events := []models.OrderEvent{}

	for _, sellerID := range sellerIDs {
		sellerLines := partitions[sellerID]

		var orderID int
		err := tx.QueryRowContext(ctx,
			"INSERT INTO orders (buyer_id, order_date, total_amount, final_total) VALUES ($1, $2, 0, 0) RETURNING id",
			userID, now,
		).Scan(&orderID)
		if err != nil {
			h.failCheckout(c, span, "Failed to create order", err)
			return
		}

		trackingNumber := fmt.Sprintf("TRK%d%d", now.UnixMilli(), orderID)
		var shipmentID int
		err = tx.QueryRowContext(ctx,
			"INSERT INTO shipments (tracking_number, carrier, shipping_fee, status, estimated_delivery_date) VALUES ($1, $2, $3, $4, $5) RETURNING id",
			trackingNumber, shipmentCarrier, shippingFee, models.ShipmentPreparing, now.Add(deliveryEstimate),
		).Scan(&shipmentID)
		if err != nil {
			h.failCheckout(c, span, "Failed to create shipment", err)
			return
		}

		var paymentID int
		err = tx.QueryRowContext(ctx,
			"INSERT INTO payments (method, status, paid_at, amount) VALUES ($1, $2, $3, 0) RETURNING id",
			req.PaymentMethod, payStatus, paidAt,
		).Scan(&paymentID)
		if err != nil {
			h.failCheckout(c, span, "Failed to create payment", err)
			return
		}

		for _, line := range sellerLines {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO order_details (order_id, product_id, quantity, unit_price, shipment_id, transaction_id) VALUES ($1, $2, $3, $4, $5, $6)",
				orderID, line.ProductID, line.Quantity, line.BasePrice, shipmentID, paymentID,
			); err != nil {
				h.failCheckout(c, span, "Failed to create order detail", err)
				return
			}

			// The stock guard re-checks availability inside the transaction;
			// a concurrent checkout that drained the stock fails here.
			result, err := tx.ExecContext(ctx,
				"UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2 AND stock_quantity >= $1",
				line.Quantity, line.ProductID,
			)
			if err != nil {
				h.failCheckout(c, span, "Failed to decrement stock", err)
				return
			}
			if affected, _ := result.RowsAffected(); affected == 0 {
				middleware.RecordCheckoutFailed()
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Not enough stock for product %d.", line.ProductID)})
				return
			}

			if _, err := tx.ExecContext(ctx,
				"DELETE FROM cart_items WHERE buyer_id = $1 AND product_id = $2",
				userID, line.ProductID,
			); err != nil {
				h.failCheckout(c, span, "Failed to clear cart item", err)
				return
			}
		}

		finalTotal, err := h.totals.Apply(ctx, tx, orderID, shippingFee)
		if err != nil {
			h.failCheckout(c, span, "Failed to compute order totals", err)
			return
		}

		// Reconcile the payment amount with the computed final total.
		if _, err := tx.ExecContext(ctx,
			"UPDATE payments SET amount = $1 WHERE id = $2",
			finalTotal, paymentID,
		); err != nil {
			h.failCheckout(c, span, "Failed to reconcile payment amount", err)
			return
		}

		orderIDs = append(orderIDs, orderID)
		events = append(events, models.OrderEvent{
			OrderID:    orderID,
			BuyerID:    userID,
			SellerID:   sellerID,
			ItemCount:  len(sellerLines),
			FinalTotal: finalTotal,
			PayStatus:  payStatus,
			EventType:  "order_placed",
		})
	}

	if err := tx.Commit(); err != nil {
		h.failCheckout(c, span, "Failed to commit checkout", err)
		return
	}

	// Stock changed; drop the cached catalog entries for the sold products.
	if h.redisClient != nil {
		for _, line := range lines {
			if err := cache.DeleteProduct(ctx, h.redisClient, line.ProductID); err != nil {
				h.logger.Warn("Failed to invalidate product cache",
					zap.Int("product_id", line.ProductID), zap.Error(err))
			}
		}
	}

	for _, event := range events {
		middleware.RecordOrderPlaced(req.PaymentMethod)
		if h.producer == nil {
			continue
		}
		if err := kafka.PublishOrderEvent(ctx, h.producer, orderEventsTopic, event, h.logger); err != nil {
			// Checkout already committed; the event is best-effort.
			h.logger.Error("Failed to publish order_placed event", zap.Error(err))
		}
	}

	span.SetAttributes(
		attribute.Int("checkout.orders", len(orderIDs)),
		attribute.Int("checkout.items", len(lines)),
	)
	h.logger.Info("Order placed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("buyer_id", userID),
		zap.Ints("order_ids", orderIDs),
	)
	c.JSON(http.StatusOK, models.CheckoutResponse{
		Message:  "Order placed successfully!",
		OrderIDs: orderIDs,
	})
}

func (h *CartHandler) resolveLines(ctx context.Context, tx *sql.Tx, userID int, items []models.CheckoutItem) ([]checkoutLine, error) {
	var rows *sql.Rows
	var err error

	if len(items) > 0 {
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, int64(item.ProductID))
		}
		rows, err = tx.QueryContext(ctx,
			`SELECT p.id, p.base_price, c.quantity, p.seller_id
			 FROM cart_items c JOIN products p ON c.product_id = p.id
			 WHERE c.buyer_id = $1 AND c.product_id = ANY($2)`,
			userID, pq.Array(ids),
		)
	} else {
		rows, err = tx.QueryContext(ctx,
			`SELECT p.id, p.base_price, c.quantity, p.seller_id
			 FROM cart_items c JOIN products p ON c.product_id = p.id
			 WHERE c.buyer_id = $1`,
			userID,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []checkoutLine
	for rows.Next() {
		var line checkoutLine
		if err := rows.Scan(&line.ProductID, &line.BasePrice, &line.Quantity, &line.SellerID); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (h *CartHandler) failCheckout(c *gin.Context, span trace.Span, msg string, err error) {
	span.RecordError(err)
	middleware.RecordCheckoutFailed()
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Checkout Failed"})
}
