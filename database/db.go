package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "keycraft")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)                 // max number of open connections
	db.SetMaxIdleConns(10)                 // max number of idle connections
	db.SetConnMaxLifetime(5 * time.Minute) // how long a connection can be reused
	db.SetConnMaxIdleTime(1 * time.Minute) // how long an idle connection stays in pool

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		avatar TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'Active',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_phones (
		user_id INTEGER NOT NULL REFERENCES users(id),
		phone_number VARCHAR(30) NOT NULL,
		PRIMARY KEY (user_id, phone_number)
	);

	CREATE TABLE IF NOT EXISTS buyers (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		coin_balance NUMERIC(12,2) NOT NULL DEFAULT 0,
		membership_level VARCHAR(20) NOT NULL DEFAULT 'Silver'
	);

	CREATE TABLE IF NOT EXISTS sellers (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		shop_name VARCHAR(255) UNIQUE NOT NULL,
		shop_description TEXT,
		rating NUMERIC(3,2) NOT NULL DEFAULT 5.0,
		response_rate INTEGER NOT NULL DEFAULT 100
	);

	CREATE TABLE IF NOT EXISTS admins (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		permission_level INTEGER NOT NULL DEFAULT 1,
		role VARCHAR(50) NOT NULL DEFAULT 'Moderator'
	);

	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		seller_id INTEGER NOT NULL REFERENCES sellers(user_id),
		name VARCHAR(255) NOT NULL,
		description TEXT,
		base_price NUMERIC(12,2) NOT NULL,
		stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
		weight NUMERIC(8,2),
		dimensions VARCHAR(100),
		condition_state VARCHAR(20) NOT NULL DEFAULT 'New',
		is_pre_order BOOLEAN NOT NULL DEFAULT FALSE,
		image_url TEXT,
		rating NUMERIC(3,2) NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cart_items (
		buyer_id INTEGER NOT NULL REFERENCES users(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (buyer_id, product_id)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		buyer_id INTEGER NOT NULL REFERENCES users(id),
		order_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		final_total NUMERIC(12,2) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS shipments (
		id SERIAL PRIMARY KEY,
		tracking_number VARCHAR(100) NOT NULL,
		carrier VARCHAR(50) NOT NULL,
		shipping_fee NUMERIC(8,2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'Preparing',
		estimated_delivery_date TIMESTAMP,
		actual_delivery_date TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		method VARCHAR(30) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'Pending',
		paid_at TIMESTAMP,
		amount NUMERIC(12,2) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS order_details (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(12,2) NOT NULL,
		shipment_id INTEGER NOT NULL REFERENCES shipments(id),
		transaction_id INTEGER NOT NULL REFERENCES payments(id),
		is_rated BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS addresses (
		user_id INTEGER NOT NULL REFERENCES users(id),
		address_id INTEGER NOT NULL,
		receiver_name VARCHAR(255) NOT NULL,
		phone VARCHAR(30),
		city VARCHAR(100),
		district VARCHAR(100),
		street VARCHAR(255),
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		address_type VARCHAR(30) NOT NULL DEFAULT 'Delivery',
		PRIMARY KEY (user_id, address_id)
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
