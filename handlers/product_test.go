package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keycraft-api/cache"
	"keycraft-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupProductTest(t *testing.T) (*ProductHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewProductHandler(db, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/products/search", handler.SearchProducts)
	router.GET("/products/:id", handler.GetProduct)
	router.Use(identityMiddleware(1, models.RoleBuyer))
	router.POST("/products/review", handler.SubmitReview)

	return handler, mock, router
}

func searchRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "seller_id", "name", "description", "base_price",
		"stock_quantity", "condition_state", "image_url", "rating", "review_count", "shop_name"})
}

func TestProductHandler_SearchProducts_KeywordAndRange(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT p.id, p.seller_id, p.name").
		WithArgs("%keycap%", 10.0, 200.0).
		WillReturnRows(searchRows().
			AddRow(1, 2, "Keycap Set", "PBT", 99.00, 10, "New", "", 4.5, 12, "KeyCraft Shop"))

	req := httptest.NewRequest("GET", "/products/search?keyword=keycap&min=10&max=200&sort=price_asc", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var results []models.SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Keycap Set" {
		t.Errorf("Unexpected search results: %+v", results)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_SearchProducts_NoFilters(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT p.id, p.seller_id, p.name").
		WillReturnRows(searchRows())

	req := httptest.NewRequest("GET", "/products/search", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("Expected empty array for no matches, got %s", body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_SearchProducts_InvalidPrice(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest("GET", "/products/search?min=abc", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestProductHandler_GetProduct_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, seller_id, name").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "name", "description", "base_price",
			"stock_quantity", "weight", "dimensions", "condition_state", "is_pre_order", "image_url",
			"rating", "review_count", "created_at", "updated_at"}).
			AddRow(1, 2, "Keycap Set", "PBT", 99.00, 10, 0.5, "", "New", false, "", 4.5, 12, now, now))

	req := httptest.NewRequest("GET", "/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var product models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if product.ID != 1 || product.Rating != 4.5 {
		t.Errorf("Unexpected product payload: %+v", product)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_GetProduct_NotFound(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id, seller_id, name").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/products/99", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_GetProduct_CacheHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewProductHandler(db, rdb, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/products/:id", handler.GetProduct)

	if err := cache.SetProduct(context.Background(), rdb, 1,
		models.Product{ID: 1, Name: "Keycap Set", BasePrice: 99.00}, cache.ProductTTL); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	req := httptest.NewRequest("GET", "/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var product models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if product.Name != "Keycap Set" {
		t.Errorf("Unexpected product payload: %+v", product)
	}

	// A cache hit must not reach the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestProductHandler_GetProduct_InvalidID(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest("GET", "/products/abc", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestProductHandler_SubmitReview_Success(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT is_rated FROM order_details WHERE id = \\$1 AND product_id = \\$2").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"is_rated"}).AddRow(false))
	mock.ExpectExec("UPDATE order_details SET is_rated = TRUE WHERE id = \\$1 AND is_rated = FALSE").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE products\s+SET rating = \(rating \* review_count \+ \$1\) / \(review_count \+ 1\),\s+review_count = review_count \+ 1`).
		WithArgs(4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, _ := json.Marshal(models.ReviewRequest{ProductID: 1, OrderDetailID: 5, Rating: 4})
	req := httptest.NewRequest("POST", "/products/review", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_SubmitReview_AlreadyRated(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT is_rated FROM order_details WHERE id = \\$1 AND product_id = \\$2").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"is_rated"}).AddRow(true))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.ReviewRequest{ProductID: 1, OrderDetailID: 5, Rating: 4})
	req := httptest.NewRequest("POST", "/products/review", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_SubmitReview_ConcurrentRace(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	// A concurrent review flipped is_rated between the read and the guarded
	// update; zero rows affected means this one loses.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT is_rated FROM order_details WHERE id = \\$1 AND product_id = \\$2").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"is_rated"}).AddRow(false))
	mock.ExpectExec("UPDATE order_details SET is_rated = TRUE WHERE id = \\$1 AND is_rated = FALSE").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	body, _ := json.Marshal(models.ReviewRequest{ProductID: 1, OrderDetailID: 5, Rating: 4})
	req := httptest.NewRequest("POST", "/products/review", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductHandler_SubmitReview_InvalidRating(t *testing.T) {
	handler, mock, router := setupProductTest(t)
	defer handler.db.Close()

	body, _ := json.Marshal(models.ReviewRequest{ProductID: 1, OrderDetailID: 5, Rating: 6})
	req := httptest.NewRequest("POST", "/products/review", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}
