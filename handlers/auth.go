package handlers

import (
	"database/sql"
	"net/http"

	"keycraft-api/middleware"
	"keycraft-api/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAuthHandler(db *sql.DB, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:     db,
		logger: logger,
	}
}

// Register creates the users row and its buyer extension atomically. Every
// new account starts as a Silver buyer with zero coins.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "Register")
	defer span.End()

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: username, email, or password."})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer tx.Rollback()

	var existingID int
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM users WHERE username = $1 OR email = $2",
		req.Username, req.Email,
	).Scan(&existingID)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username or Email already exists!"})
		return
	} else if err != sql.ErrNoRows {
		span.RecordError(err)
		h.logger.Error("Database error", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var userID int
	err = tx.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash, status) VALUES ($1, $2, $3, $4) RETURNING id",
		req.Username, req.Email, string(hashedPassword), models.StatusActive,
	).Scan(&userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO buyers (user_id, coin_balance, membership_level) VALUES ($1, $2, $3)",
		userID, 0, "Silver",
	); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create buyer record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if req.Phone != "" {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_phones (user_id, phone_number) VALUES ($1, $2)",
			userID, req.Phone,
		); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to save phone number", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit registration", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))
	h.logger.Info("User registered",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("username", req.Username),
	)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful! You can login now.",
		"userId":  userID,
		"role":    models.RoleBuyer,
	})
}

// Login authenticates a user and resolves their effective role. Banned
// accounts are rejected before the password is checked so the response does
// not depend on credential correctness.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "Login")
	defer span.End()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and Password are required."})
		return
	}

	var user models.User
	err := h.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, status FROM users WHERE username = $1",
		req.Username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password."})
			return
		}
		span.RecordError(err)
		h.logger.Error("Database error", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if user.Status == models.StatusBanned {
		c.JSON(http.StatusForbidden, gin.H{"error": "This account has been banned."})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password."})
		return
	}

	role, details, err := models.ResolveRole(ctx, h.db, user.ID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to resolve role", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	tokenString, err := middleware.GenerateToken(user.ID, user.Username, role)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.role", string(role)),
	)
	h.logger.Info("User logged in",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("username", user.Username),
		zap.String("role", string(role)),
	)
	c.JSON(http.StatusOK, models.LoginResponse{
		Message: "Welcome back, " + string(role) + "!",
		Token:   tokenString,
		User: models.LoginUser{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     role,
			Details:  details,
		},
	})
}
