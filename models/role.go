package models

import (
	"context"
	"database/sql"
)

// Role is the single role attached to a user. A user may have rows in more
// than one role table; ResolveRole applies the precedence Admin > Seller > Buyer.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleSeller Role = "Seller"
	RoleBuyer  Role = "Buyer"
)

// ResolveRole determines a user's effective role and the role-extension
// columns shown to the client after login.
func ResolveRole(ctx context.Context, db *sql.DB, userID int) (Role, map[string]any, error) {
	var permissionLevel int
	var adminRole string
	err := db.QueryRowContext(ctx,
		"SELECT permission_level, role FROM admins WHERE user_id = $1", userID,
	).Scan(&permissionLevel, &adminRole)
	if err == nil {
		return RoleAdmin, map[string]any{"permission_level": permissionLevel, "role": adminRole}, nil
	}
	if err != sql.ErrNoRows {
		return "", nil, err
	}

	var shopName string
	var rating float64
	err = db.QueryRowContext(ctx,
		"SELECT shop_name, rating FROM sellers WHERE user_id = $1", userID,
	).Scan(&shopName, &rating)
	if err == nil {
		return RoleSeller, map[string]any{"shop_name": shopName, "rating": rating}, nil
	}
	if err != sql.ErrNoRows {
		return "", nil, err
	}

	var coinBalance float64
	var membershipLevel string
	err = db.QueryRowContext(ctx,
		"SELECT coin_balance, membership_level FROM buyers WHERE user_id = $1", userID,
	).Scan(&coinBalance, &membershipLevel)
	if err == nil {
		return RoleBuyer, map[string]any{"coin_balance": coinBalance, "membership_level": membershipLevel}, nil
	}
	if err != sql.ErrNoRows {
		return "", nil, err
	}

	// No role-extension row at all; treat as a plain buyer with no details.
	return RoleBuyer, map[string]any{}, nil
}
