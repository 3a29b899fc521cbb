package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"keycraft-api/cache"
	"keycraft-api/circuitbreaker"
	"keycraft-api/middleware"
	"keycraft-api/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ProductHandler struct {
	db             *sql.DB
	redisClient    *redis.Client
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewProductHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		db:             db,
		redisClient:    redisClient,
		logger:         logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
	}
}

// SearchProducts filters the public catalog by keyword and price range.
// sort: price_asc, price_desc, rating, newest (default).
func (h *ProductHandler) SearchProducts(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "SearchProducts")
	defer span.End()

	query := `SELECT p.id, p.seller_id, p.name, COALESCE(p.description, ''), p.base_price, p.stock_quantity,
		p.condition_state, COALESCE(p.image_url, ''), p.rating, p.review_count, s.shop_name
		FROM products p JOIN sellers s ON p.seller_id = s.user_id WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if keyword := c.Query("keyword"); keyword != "" {
		query += " AND p.name ILIKE $" + strconv.Itoa(argPos)
		args = append(args, "%"+keyword+"%")
		argPos++
	}
	if min := c.Query("min"); min != "" {
		minPrice, err := strconv.ParseFloat(min, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min price"})
			return
		}
		query += " AND p.base_price >= $" + strconv.Itoa(argPos)
		args = append(args, minPrice)
		argPos++
	}
	if max := c.Query("max"); max != "" {
		maxPrice, err := strconv.ParseFloat(max, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max price"})
			return
		}
		query += " AND p.base_price <= $" + strconv.Itoa(argPos)
		args = append(args, maxPrice)
		argPos++
	}

	switch c.Query("sort") {
	case "price_asc":
		query += " ORDER BY p.base_price ASC"
	case "price_desc":
		query += " ORDER BY p.base_price DESC"
	case "rating":
		query += " ORDER BY p.rating DESC"
	default:
		query += " ORDER BY p.id DESC"
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to search products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ID, &r.SellerID, &r.Name, &r.Description, &r.BasePrice, &r.StockQuantity,
			&r.ConditionState, &r.ImageURL, &r.Rating, &r.ReviewCount, &r.ShopName); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan product", zap.Error(err))
			continue
		}
		results = append(results, r)
	}

	span.SetAttributes(attribute.Int("products.count", len(results)))
	c.JSON(http.StatusOK, results)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", productID))

	// Try to get from cache first
	if h.redisClient != nil {
		cachedData, err := cache.GetProduct(ctx, h.redisClient, productID)
		if err == nil {
			var product models.Product
			if err := json.Unmarshal(cachedData, &product); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				h.logger.Info("Cache hit", zap.Int("product_id", productID))
				c.JSON(http.StatusOK, product)
				return
			}
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Get from database with circuit breaker
	var product models.Product
	dbErr := h.circuitBreaker.Execute(ctx, func() error {
		return h.db.QueryRowContext(ctx,
			`SELECT id, seller_id, name, COALESCE(description, ''), base_price, stock_quantity, COALESCE(weight, 0),
			 COALESCE(dimensions, ''), condition_state, is_pre_order, COALESCE(image_url, ''), rating, review_count, created_at, updated_at
			 FROM products WHERE id = $1`,
			productID,
		).Scan(&product.ID, &product.SellerID, &product.Name, &product.Description, &product.BasePrice,
			&product.StockQuantity, &product.Weight, &product.Dimensions, &product.ConditionState,
			&product.IsPreOrder, &product.ImageURL, &product.Rating, &product.ReviewCount,
			&product.CreatedAt, &product.UpdatedAt)
	})

	if dbErr != nil {
		if dbErr == circuitbreaker.ErrCircuitOpen {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		if dbErr == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(dbErr)
		h.logger.Error("Failed to fetch product", zap.Error(dbErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.redisClient != nil {
		cache.SetProduct(ctx, h.redisClient, productID, product, cache.ProductTTL)
	}

	c.JSON(http.StatusOK, product)
}

// SubmitReview rates a purchased order line once. The product rating is an
// online weighted average; no per-review row is stored.
func (h *ProductHandler) SubmitReview(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "SubmitReview")
	defer span.End()

	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ProductID <= 0 || req.OrderDetailID <= 0 || req.Rating < 1 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product, order detail, or rating."})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin review transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer tx.Rollback()

	var isRated bool
	err = tx.QueryRowContext(ctx,
		"SELECT is_rated FROM order_details WHERE id = $1 AND product_id = $2",
		req.OrderDetailID, req.ProductID,
	).Scan(&isRated)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order detail not found."})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to read order detail", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if isRated {
		c.JSON(http.StatusConflict, gin.H{"error": "This item has already been rated."})
		return
	}

	// The is_rated guard is re-checked in the WHERE so two concurrent
	// reviews of the same order line cannot both pass.
	result, err := tx.ExecContext(ctx,
		"UPDATE order_details SET is_rated = TRUE WHERE id = $1 AND is_rated = FALSE",
		req.OrderDetailID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to mark order detail rated", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "This item has already been rated."})
		return
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET rating = (rating * review_count + $1) / (review_count + 1),
		     review_count = review_count + 1,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = $2`,
		req.Rating, req.ProductID,
	); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update product rating", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit review", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	middleware.RecordReviewSubmitted()
	if h.redisClient != nil {
		cache.DeleteProduct(ctx, h.redisClient, req.ProductID)
	}

	span.SetAttributes(
		attribute.Int("product.id", req.ProductID),
		attribute.Int("review.rating", req.Rating),
	)
	h.logger.Info("Review submitted",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", req.ProductID),
		zap.Int("order_detail_id", req.OrderDetailID),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Thank you for your review!"})
}
