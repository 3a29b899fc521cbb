package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keycraft-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupSellerTest(t *testing.T) (*SellerHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewSellerHandler(db, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(identityMiddleware(2, models.RoleSeller))
	router.GET("/seller/products", handler.GetMyProducts)
	router.POST("/seller/products", handler.CreateProduct)
	router.PUT("/seller/products/:id", handler.UpdateProduct)
	router.DELETE("/seller/products/:id", handler.DeleteProduct)
	router.GET("/seller/analytics", handler.GetAnalytics)
	router.GET("/seller/monthly-revenue", handler.GetMonthlyRevenue)

	return handler, mock, router
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "seller_id", "name", "description", "base_price",
		"stock_quantity", "weight", "dimensions", "condition_state", "is_pre_order", "image_url",
		"rating", "review_count", "created_at", "updated_at"})
}

func TestSellerHandler_CreateProduct_Success(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(2, "Keycap Set", "PBT dye-sub", 99.00, 10, 0.5, "", "New", false, "").
		WillReturnRows(productRows().
			AddRow(1, 2, "Keycap Set", "PBT dye-sub", 99.00, 10, 0.5, "", "New", false, "", 0.0, 0, now, now))

	body, _ := json.Marshal(models.CreateProductRequest{
		Name:        "Keycap Set",
		Description: "PBT dye-sub",
		Price:       99.00,
		Stock:       10,
		Weight:      0.5,
	})
	req := httptest.NewRequest("POST", "/seller/products", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d (body: %s)", http.StatusCreated, w.Code, w.Body.String())
	}

	var product models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if product.ID != 1 || product.ConditionState != "New" {
		t.Errorf("Unexpected product payload: %+v", product)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_CreateProduct_MissingFields(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	body, _ := json.Marshal(map[string]interface{}{"description": "no name or price"})
	req := httptest.NewRequest("POST", "/seller/products", bytes.NewBuffer(body))
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

func TestSellerHandler_UpdateProduct_PartialFields(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	price := 120.00
	mock.ExpectQuery("SELECT seller_id FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id"}).AddRow(2))
	mock.ExpectExec("UPDATE products SET updated_at = CURRENT_TIMESTAMP, base_price = \\$1 WHERE id = \\$2").
		WithArgs(price, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(models.UpdateProductRequest{Price: &price})
	req := httptest.NewRequest("PUT", "/seller/products/1", bytes.NewBuffer(body))
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

func TestSellerHandler_UpdateProduct_NotOwner(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT seller_id FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id"}).AddRow(99))

	body, _ := json.Marshal(models.UpdateProductRequest{Name: "Hijacked"})
	req := httptest.NewRequest("PUT", "/seller/products/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_DeleteProduct_Success(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT seller_id FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM cart_items WHERE product_id = \\$1").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest("DELETE", "/seller/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_DeleteProduct_HasOrders(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT seller_id FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM cart_items WHERE product_id = \\$1").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs(1).
		WillReturnError(errors.New(`pq: update or delete on table "products" violates foreign key constraint`))
	mock.ExpectRollback()

	req := httptest.NewRequest("DELETE", "/seller/products/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_GetAnalytics_WithRange(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT p.id, p.name, SUM\\(od.quantity\\)").
		WithArgs(2, "2024-01-01", "2024-01-31", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "units_sold", "revenue"}).
			AddRow(1, "Keycap Set", 7, 693.00))

	req := httptest.NewRequest("GET", "/seller/analytics?start=2024-01-01&end=2024-01-31&minSold=3", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp models.AnalyticsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Meta.From != "2024-01-01" || resp.Meta.To != "2024-01-31" {
		t.Errorf("Unexpected meta range: %+v", resp.Meta)
	}
	if len(resp.Data) != 1 || resp.Data[0].UnitsSold != 7 {
		t.Errorf("Unexpected analytics rows: %+v", resp.Data)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_GetAnalytics_DefaultsToCurrentMonth(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
	to := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Format("2006-01-02")

	mock.ExpectQuery("SELECT p.id, p.name, SUM\\(od.quantity\\)").
		WithArgs(2, from, to, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "units_sold", "revenue"}))

	req := httptest.NewRequest("GET", "/seller/analytics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_GetMonthlyRevenue(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(od.quantity \\* od.unit_price\\), 0\\)").
		WithArgs(2, 3, 2024).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1250.50))

	req := httptest.NewRequest("GET", "/seller/monthly-revenue?month=3&year=2024", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["revenue"].(float64) != 1250.50 {
		t.Errorf("Expected revenue 1250.50, got %v", resp["revenue"])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSellerHandler_GetMonthlyRevenue_InvalidMonth(t *testing.T) {
	handler, mock, router := setupSellerTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest("GET", "/seller/monthly-revenue?month=13", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}
