package domain

// Storage keys. Every alias of a field is written and removed together so that
// sessions created under older key names keep working.
const (
	KeyToken               = "token"
	KeyAccessToken         = "access_token"
	KeyJWT                 = "jwt"
	KeyUserID              = "user_id"
	KeyUserIDCamel         = "userId"
	KeyRefreshToken        = "refreshToken"
	KeyPendingVerification = "pendingVerification"
)

var (
	// TokenKeys lists token aliases in lookup order
	TokenKeys = []string{KeyToken, KeyAccessToken, KeyJWT}

	// UserIDKeys lists user id aliases in lookup order
	UserIDKeys = []string{KeyUserID, KeyUserIDCamel}

	// CredentialKeys is everything ClearAuth removes
	CredentialKeys = []string{KeyToken, KeyAccessToken, KeyJWT, KeyUserID, KeyUserIDCamel, KeyRefreshToken}
)

// Response field aliases accepted from the identity backend, in priority order.
var (
	LoginTokenFields   = []string{"access_token", "token", "accessToken", "jwt"}
	LoginUserIDFields  = []string{"user_id", "userId", "id"}
	RefreshTokenFields = []string{"refresh_token", "refreshToken"}
	MeUserIDFields     = []string{"user_id", "userId", "id", "sub"}
	MeTokenFields      = []string{"access_token", "token"}
	PayloadSubjects    = []string{"sub", "user_id", "uid", "id"}
)

// Credential is the persisted authentication state of one session
type Credential struct {
	Token        string
	UserID       string
	RefreshToken string
}

// Complete reports whether both halves of the credential are present
func (c Credential) Complete() bool {
	return c.Token != "" && c.UserID != ""
}

// Empty reports whether neither half is present
func (c Credential) Empty() bool {
	return c.Token == "" && c.UserID == ""
}

// CredentialFromValues picks the first non-empty alias of each field
func CredentialFromValues(values map[string]string) Credential {
	return Credential{
		Token:        firstValue(values, TokenKeys),
		UserID:       firstValue(values, UserIDKeys),
		RefreshToken: values[KeyRefreshToken],
	}
}

// Values expands the credential into every alias. Empty fields are skipped.
func (c Credential) Values() map[string]string {
	values := make(map[string]string, len(CredentialKeys))
	if c.Token != "" {
		for _, key := range TokenKeys {
			values[key] = c.Token
		}
	}
	if c.UserID != "" {
		for _, key := range UserIDKeys {
			values[key] = c.UserID
		}
	}
	if c.RefreshToken != "" {
		values[KeyRefreshToken] = c.RefreshToken
	}
	return values
}

// InSync reports whether every alias already holds the canonical value
func (c Credential) InSync(values map[string]string) bool {
	for key, value := range c.Values() {
		if values[key] != value {
			return false
		}
	}
	return true
}

func firstValue(values map[string]string, keys []string) string {
	for _, key := range keys {
		if v := values[key]; v != "" {
			return v
		}
	}
	return ""
}
