package dto

type SaveCredentialRequest struct {
	UserID     string  `json:"user_id"`
	PlatformID string  `json:"platform_id"`
	Username   string  `json:"username"`
	Password   string  `json:"password"`
	APIKey     *string `json:"api_key"`
}

// DecryptedCredentialResponse carries plaintext and is only served to the
// automation collaborator.
type DecryptedCredentialResponse struct {
	UserID     string  `json:"user_id"`
	PlatformID string  `json:"platform_id"`
	Username   string  `json:"username"`
	Password   string  `json:"password"`
	APIKey     *string `json:"api_key"`
}

type PlatformStatus struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LoginURL       string `json:"login_url"`
	HasCredentials bool   `json:"has_credentials"`
}
