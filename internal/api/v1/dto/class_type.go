package dto

// ClassTypeCreateDTO is used for incoming class-type creation requests
type ClassTypeCreateDTO struct {
	Nombre       string `json:"nombre" validate:"required"`
	Descripcion  string `json:"descripcion,omitempty"`
	Precio       int    `json:"precio" validate:"gte=0"`
	ResetMensual bool   `json:"resetMensual"`
}

// ClassTypeUpdateDTO is used for incoming class-type update requests
type ClassTypeUpdateDTO struct {
	Nombre       *string `json:"nombre,omitempty"`
	Descripcion  *string `json:"descripcion,omitempty"`
	Precio       *int    `json:"precio,omitempty" validate:"omitempty,gte=0"`
	ResetMensual *bool   `json:"resetMensual,omitempty"`
}
