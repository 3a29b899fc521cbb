package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"keycraft-api/cache"
	"keycraft-api/middleware"
	"keycraft-api/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SellerHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewSellerHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *SellerHandler {
	return &SellerHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

const productColumns = `id, seller_id, name, COALESCE(description, ''), base_price, stock_quantity, COALESCE(weight, 0),
	COALESCE(dimensions, ''), condition_state, is_pre_order, COALESCE(image_url, ''), rating, review_count, created_at, updated_at`

func scanProduct(row *sql.Row, p *models.Product) error {
	return row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.BasePrice, &p.StockQuantity,
		&p.Weight, &p.Dimensions, &p.ConditionState, &p.IsPreOrder, &p.ImageURL,
		&p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
}

func (h *SellerHandler) GetMyProducts(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetMyProducts")
	defer span.End()

	sellerID := middleware.GetUserID(c)

	rows, err := h.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE seller_id = $1 ORDER BY id DESC",
		sellerID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch seller products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.BasePrice, &p.StockQuantity,
			&p.Weight, &p.Dimensions, &p.ConditionState, &p.IsPreOrder, &p.ImageURL,
			&p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan product", zap.Error(err))
			continue
		}
		products = append(products, p)
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	c.JSON(http.StatusOK, products)
}

func (h *SellerHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	sellerID := middleware.GetUserID(c)

	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	condition := req.Condition
	if condition == "" {
		condition = models.ConditionNew
	}

	var product models.Product
	err := scanProduct(h.db.QueryRowContext(ctx,
		`INSERT INTO products (seller_id, name, description, base_price, stock_quantity, weight, dimensions, condition_state, is_pre_order, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+productColumns,
		sellerID, req.Name, req.Description, req.Price, req.Stock, req.Weight, req.Dimensions, condition, req.IsPreOrder, req.Image,
	), &product)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", product.ID),
		zap.Int("seller_id", sellerID),
	)
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct applies a partial update; only the provided fields change.
func (h *SellerHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	sellerID := middleware.GetUserID(c)
	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", productID))

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ownerID int
	err = h.db.QueryRowContext(ctx, "SELECT seller_id FROM products WHERE id = $1", productID).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product owner", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if ownerID != sellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access Denied"})
		return
	}

	// Build update query dynamically
	query := "UPDATE products SET updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argPos := 1

	if req.Name != "" {
		query += ", name = $" + strconv.Itoa(argPos)
		args = append(args, req.Name)
		argPos++
	}
	if req.Description != "" {
		query += ", description = $" + strconv.Itoa(argPos)
		args = append(args, req.Description)
		argPos++
	}
	if req.Price != nil {
		query += ", base_price = $" + strconv.Itoa(argPos)
		args = append(args, *req.Price)
		argPos++
	}
	if req.Stock != nil {
		query += ", stock_quantity = $" + strconv.Itoa(argPos)
		args = append(args, *req.Stock)
		argPos++
	}
	if req.Weight != nil {
		query += ", weight = $" + strconv.Itoa(argPos)
		args = append(args, *req.Weight)
		argPos++
	}
	if req.Dimensions != "" {
		query += ", dimensions = $" + strconv.Itoa(argPos)
		args = append(args, req.Dimensions)
		argPos++
	}
	if req.Condition != "" {
		query += ", condition_state = $" + strconv.Itoa(argPos)
		args = append(args, req.Condition)
		argPos++
	}
	if req.IsPreOrder != nil {
		query += ", is_pre_order = $" + strconv.Itoa(argPos)
		args = append(args, *req.IsPreOrder)
		argPos++
	}
	if req.Image != "" {
		query += ", image_url = $" + strconv.Itoa(argPos)
		args = append(args, req.Image)
		argPos++
	}

	query += " WHERE id = $" + strconv.Itoa(argPos)
	args = append(args, productID)

	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Invalidate cache
	if h.redisClient != nil {
		cache.DeleteProduct(ctx, h.redisClient, productID)
	}

	h.logger.Info("Product updated", zap.Int("product_id", productID))
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully!"})
}

func (h *SellerHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	sellerID := middleware.GetUserID(c)
	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", productID))

	var ownerID int
	err = h.db.QueryRowContext(ctx, "SELECT seller_id FROM products WHERE id = $1", productID).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product owner", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if ownerID != sellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to delete this product!"})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin delete transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE product_id = $1", productID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to clear carts for product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = $1", productID); err != nil {
		// Products referenced by order details cannot be removed.
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete a product with existing orders."})
		return
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit product delete", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Invalidate cache
	if h.redisClient != nil {
		cache.DeleteProduct(ctx, h.redisClient, productID)
	}

	h.logger.Info("Product deleted", zap.Int("product_id", productID))
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully!"})
}

// GetAnalytics reports per-product units and revenue for the seller over a
// date range, defaulting to the current month.
func (h *SellerHandler) GetAnalytics(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetAnalytics")
	defer span.End()

	sellerID := middleware.GetUserID(c)

	now := time.Now()
	start := c.Query("start")
	if start == "" {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
	}
	end := c.Query("end")
	if end == "" {
		end = time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
	}
	minSold := 0
	if v := c.Query("minSold"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid minSold"})
			return
		}
		minSold = parsed
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT p.id, p.name, SUM(od.quantity) AS units_sold, SUM(od.quantity * od.unit_price) AS revenue
		 FROM order_details od
		 JOIN orders o ON od.order_id = o.id
		 JOIN products p ON od.product_id = p.id
		 WHERE p.seller_id = $1 AND o.order_date >= $2::date AND o.order_date < $3::date + INTERVAL '1 day'
		 GROUP BY p.id, p.name
		 HAVING SUM(od.quantity) >= $4
		 ORDER BY units_sold DESC`,
		sellerID, start, end, minSold,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics data."})
		return
	}
	defer rows.Close()

	resp := models.AnalyticsResponse{Data: []models.AnalyticsRow{}}
	resp.Meta.From = start
	resp.Meta.To = end
	for rows.Next() {
		var row models.AnalyticsRow
		if err := rows.Scan(&row.ProductID, &row.Name, &row.UnitsSold, &row.Revenue); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan analytics row", zap.Error(err))
			continue
		}
		resp.Data = append(resp.Data, row)
	}

	span.SetAttributes(attribute.Int("analytics.rows", len(resp.Data)))
	c.JSON(http.StatusOK, resp)
}

func (h *SellerHandler) GetMonthlyRevenue(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetMonthlyRevenue")
	defer span.End()

	sellerID := middleware.GetUserID(c)

	now := time.Now()
	month := int(now.Month())
	if v := c.Query("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month"})
			return
		}
		month = parsed
	}
	year := now.Year()
	if v := c.Query("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
			return
		}
		year = parsed
	}

	var revenue float64
	err := h.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(od.quantity * od.unit_price), 0)
		 FROM order_details od
		 JOIN orders o ON od.order_id = o.id
		 JOIN products p ON od.product_id = p.id
		 WHERE p.seller_id = $1
		 AND EXTRACT(MONTH FROM o.order_date) = $2
		 AND EXTRACT(YEAR FROM o.order_date) = $3`,
		sellerID, month, year,
	).Scan(&revenue)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to calculate monthly revenue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate monthly revenue."})
		return
	}

	span.SetAttributes(attribute.Float64("revenue", revenue))
	c.JSON(http.StatusOK, gin.H{
		"month":   month,
		"year":    year,
		"revenue": revenue,
	})
}
