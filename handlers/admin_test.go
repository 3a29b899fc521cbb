package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"keycraft-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupAdminTest(t *testing.T) (*AdminHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewAdminHandler(db, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(identityMiddleware(9, models.RoleAdmin))
	router.PUT("/admin/users/status", handler.UpdateUserStatus)

	return handler, mock, router
}

func TestAdminHandler_UpdateUserStatus_Ban(t *testing.T) {
	handler, mock, router := setupAdminTest(t)
	defer handler.db.Close()

	mock.ExpectExec("UPDATE users SET status = \\$1 WHERE id = \\$2").
		WithArgs("Banned", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(models.UpdateStatusRequest{UserID: 3, Status: "Banned"})
	req := httptest.NewRequest("PUT", "/admin/users/status", bytes.NewBuffer(body))
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

func TestAdminHandler_UpdateUserStatus_Unban(t *testing.T) {
	handler, mock, router := setupAdminTest(t)
	defer handler.db.Close()

	mock.ExpectExec("UPDATE users SET status = \\$1 WHERE id = \\$2").
		WithArgs("Active", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(models.UpdateStatusRequest{UserID: 3, Status: "Active"})
	req := httptest.NewRequest("PUT", "/admin/users/status", bytes.NewBuffer(body))
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

func TestAdminHandler_UpdateUserStatus_InvalidStatus(t *testing.T) {
	handler, mock, router := setupAdminTest(t)
	defer handler.db.Close()

	body, _ := json.Marshal(models.UpdateStatusRequest{UserID: 3, Status: "Suspended"})
	req := httptest.NewRequest("PUT", "/admin/users/status", bytes.NewBuffer(body))
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

func TestAdminHandler_UpdateUserStatus_UserNotFound(t *testing.T) {
	handler, mock, router := setupAdminTest(t)
	defer handler.db.Close()

	mock.ExpectExec("UPDATE users SET status = \\$1 WHERE id = \\$2").
		WithArgs("Banned", 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	body, _ := json.Marshal(models.UpdateStatusRequest{UserID: 99, Status: "Banned"})
	req := httptest.NewRequest("PUT", "/admin/users/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
