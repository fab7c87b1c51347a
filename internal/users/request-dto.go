package users

// RegisterVehicleRequest adds a plate to the caller's garage.
type RegisterVehicleRequest struct {
	Plate string `json:"plate" binding:"required,min=3,max=16"`
	Model string `json:"model" binding:"max=64"`
}
