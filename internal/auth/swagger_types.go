package auth

// Request/response shapes referenced by swagger annotations.

type LoginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"hunter2hunter2"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SetupRequest struct {
	Username string `json:"username" example:"admin"`
	Email    string `json:"email" example:"admin@district.example"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role" example:"viewer"`
}

type UpdateUserRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	Disabled bool   `json:"disabled"`
}

type SetupStatusResponse struct {
	SetupRequired bool   `json:"setupRequired"`
	Version       string `json:"version"`
}
