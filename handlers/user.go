package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"keycraft-api/middleware"
	"keycraft-api/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Membership tier thresholds over a buyer's lifetime order totals.
const (
	tierDiamondSpend = 5000.0
	tierGoldSpend    = 1000.0
)

type UserHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserHandler(db *sql.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		db:     db,
		logger: logger,
	}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetProfile")
	defer span.End()

	userID := middleware.GetUserID(c)

	var (
		id              int
		username, email string
		avatar          sql.NullString
		coinBalance     sql.NullFloat64
		membershipLevel sql.NullString
	)
	err := h.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.avatar, b.coin_balance, b.membership_level
		 FROM users u
		 LEFT JOIN buyers b ON u.id = b.user_id
		 WHERE u.id = $1`,
		userID,
	).Scan(&id, &username, &email, &avatar, &coinBalance, &membershipLevel)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found."})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile."})
		return
	}

	phones := []string{}
	phoneRows, err := h.db.QueryContext(ctx, "SELECT phone_number FROM user_phones WHERE user_id = $1", userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch phones", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile."})
		return
	}
	defer phoneRows.Close()
	for phoneRows.Next() {
		var phone string
		if err := phoneRows.Scan(&phone); err == nil {
			phones = append(phones, phone)
		}
	}

	addresses := []models.Address{}
	addrRows, err := h.db.QueryContext(ctx,
		`SELECT user_id, address_id, receiver_name, COALESCE(phone, ''), COALESCE(city, ''), COALESCE(district, ''),
		 COALESCE(street, ''), is_default, address_type
		 FROM addresses WHERE user_id = $1 ORDER BY address_id`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch addresses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile."})
		return
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var a models.Address
		if err := addrRows.Scan(&a.UserID, &a.AddressID, &a.ReceiverName, &a.Phone, &a.City,
			&a.District, &a.Street, &a.IsDefault, &a.AddressType); err == nil {
			addresses = append(addresses, a)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               id,
		"username":         username,
		"email":            email,
		"avatar":           avatar.String,
		"coin_balance":     coinBalance.Float64,
		"membership_level": membershipLevel.String,
		"phones":           phones,
		"addresses":        addresses,
	})
}

// UpdateProfile applies the provided fields in one transaction: the avatar is
// overwritten, the phone list is replaced, and a new address is appended. The
// first address a user creates becomes their default.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "UpdateProfile")
	defer span.End()

	userID := middleware.GetUserID(c)

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin profile transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	defer tx.Rollback()

	if req.Avatar != "" {
		if _, err := tx.ExecContext(ctx, "UPDATE users SET avatar = $1 WHERE id = $2", req.Avatar, userID); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to update avatar", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	if req.Phone != "" {
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_phones WHERE user_id = $1", userID); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to clear phones", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_phones (user_id, phone_number) VALUES ($1, $2)", userID, req.Phone); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to save phone", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	if req.Address != nil {
		var maxID sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(address_id) FROM addresses WHERE user_id = $1", userID).Scan(&maxID); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to read addresses", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
		nextAddressID := int(maxID.Int64) + 1
		isDefault := nextAddressID == 1

		phone := req.Address.Phone
		if phone == "" {
			phone = req.Phone
		}
		addressType := req.Address.AddressType
		if addressType == "" {
			addressType = "Delivery"
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO addresses (user_id, address_id, receiver_name, phone, city, district, street, is_default, address_type)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			userID, nextAddressID, req.Address.ReceiverName, phone, req.Address.City,
			req.Address.District, req.Address.Street, isDefault, addressType,
		); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to add address", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit profile update", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully!"})
}

func (h *UserHandler) BecomeSeller(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "BecomeSeller")
	defer span.End()

	userID := middleware.GetUserID(c)

	var req models.BecomeSellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ShopName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Shop Name is required"})
		return
	}

	var existingID int
	err := h.db.QueryRowContext(ctx, "SELECT user_id FROM sellers WHERE user_id = $1", userID).Scan(&existingID)
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are already a Seller!"})
		return
	} else if err != sql.ErrNoRows {
		span.RecordError(err)
		h.logger.Error("Failed to check seller record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	_, err = h.db.ExecContext(ctx,
		"INSERT INTO sellers (user_id, shop_name, shop_description, rating, response_rate) VALUES ($1, $2, $3, 5.0, 100)",
		userID, req.ShopName, req.ShopDescription,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			c.JSON(http.StatusConflict, gin.H{"error": "Shop Name already taken."})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to create seller record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))
	h.logger.Info("User upgraded to seller",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", userID),
		zap.String("shop_name", req.ShopName),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Congratulations! You are now a Seller."})
}

// GetMembershipStatus recomputes the buyer's tier from lifetime order totals
// and persists it. The tier is derived, never freely settable.
func (h *UserHandler) GetMembershipStatus(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetMembershipStatus")
	defer span.End()

	userID := middleware.GetUserID(c)

	var totalSpend float64
	err := h.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(final_total), 0) FROM orders WHERE buyer_id = $1", userID,
	).Scan(&totalSpend)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to sum order totals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate membership."})
		return
	}

	rank := "Silver"
	switch {
	case totalSpend >= tierDiamondSpend:
		rank = "Diamond"
	case totalSpend >= tierGoldSpend:
		rank = "Gold"
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE buyers SET membership_level = $1 WHERE user_id = $2", rank, userID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to persist membership level", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate membership."})
		return
	}

	span.SetAttributes(attribute.String("membership.rank", rank))
	c.JSON(http.StatusOK, gin.H{
		"userId":      userID,
		"currentRank": rank,
	})
}

// advanceShipments flips the buyer's Preparing shipments to Delivered once
// their order passed the delivery delay. The guard lives in the WHERE clause,
// so concurrent runs are idempotent.
func (h *UserHandler) advanceShipments(ctx context.Context, userID int) error {
	_, err := h.db.ExecContext(ctx,
		`UPDATE shipments s
		 SET status = 'Delivered', actual_delivery_date = NOW()
		 FROM order_details od, orders o
		 WHERE od.shipment_id = s.id AND od.order_id = o.id
		 AND o.buyer_id = $1
		 AND s.status = 'Preparing'
		 AND o.order_date < NOW() - INTERVAL '40 seconds'`,
		userID,
	)
	return err
}

// GetOrders returns the buyer's order history. Shipment states are advanced
// first, so this read is not idempotent with respect to shipment status.
func (h *UserHandler) GetOrders(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "GetOrders")
	defer span.End()

	userID := middleware.GetUserID(c)

	if err := h.advanceShipments(ctx, userID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to advance shipments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT o.id, o.order_date, o.final_total,
		 s.status, s.tracking_number,
		 p.method, p.status,
		 od.id, od.is_rated,
		 od.product_id, pr.name, COALESCE(pr.image_url, ''),
		 od.quantity, od.unit_price, sl.shop_name
		 FROM orders o
		 JOIN order_details od ON o.id = od.order_id
		 JOIN shipments s ON od.shipment_id = s.id
		 JOIN payments p ON od.transaction_id = p.id
		 JOIN products pr ON od.product_id = pr.id
		 JOIN sellers sl ON pr.seller_id = sl.user_id
		 WHERE o.buyer_id = $1
		 ORDER BY o.order_date DESC, o.id DESC`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	byOrder := map[int]*models.OrderHistoryEntry{}
	ordered := []*models.OrderHistoryEntry{}
	for rows.Next() {
		var entry models.OrderHistoryEntry
		var item models.OrderItem
		if err := rows.Scan(&entry.OrderID, &entry.OrderDate, &entry.FinalTotal,
			&entry.ShipStatus, &entry.TrackingNumber,
			&entry.PayMethod, &entry.PayStatus,
			&item.OrderDetailID, &item.IsRated,
			&item.ProductID, &item.ProductName, &item.ImageURL,
			&item.Quantity, &item.UnitPrice, &item.ShopName); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan order row", zap.Error(err))
			continue
		}

		existing, ok := byOrder[entry.OrderID]
		if !ok {
			entry.Items = []models.OrderItem{}
			byOrder[entry.OrderID] = &entry
			ordered = append(ordered, &entry)
			existing = &entry
		}
		existing.Items = append(existing.Items, item)
	}

	result := make([]models.OrderHistoryEntry, 0, len(ordered))
	for _, entry := range ordered {
		result = append(result, *entry)
	}

	span.SetAttributes(attribute.Int("orders.count", len(result)))
	c.JSON(http.StatusOK, result)
}
