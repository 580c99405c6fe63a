package dto

import "time"

// CreditAdjustDTO is an admin manual credit adjustment.
type CreditAdjustDTO struct {
	Usuario   string `json:"usuario" validate:"required"`
	TipoClase string `json:"tipoClase" validate:"required"`
	Delta     int    `json:"delta" validate:"required"`
}

// FreePassDTO sets a member's free-pass window, inclusive at both ends.
type FreePassDTO struct {
	Desde time.Time `json:"desde" validate:"required"`
	Hasta time.Time `json:"hasta" validate:"required"`
}

// SubscriptionCreateDTO creates a monthly credit subscription.
type SubscriptionCreateDTO struct {
	Usuario         string `json:"usuario" validate:"required"`
	TipoClase       string `json:"tipoClase" validate:"required"`
	Status          string `json:"status" validate:"required,oneof=manual automatica"`
	AutoRenewAmount int    `json:"autoRenewAmount" validate:"required,gt=0"`
}

// BalancesResponseDTO returns a member's per-type credit balances.
type BalancesResponseDTO struct {
	Usuario  string         `json:"usuario"`
	Creditos map[string]int `json:"creditosPorTipo"`
}
