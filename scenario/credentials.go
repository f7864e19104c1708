package scenario

import "fmt"

// Environment variables holding the portal credentials.
const (
	EnvUsername = "LAU_USERNAME"
	EnvPassword = "LAU_PASSWORD"
)

// Credentials sign a session in.
type Credentials struct {
	Username string
	Password string
}

// MissingCredentialError names the credential that is not set. It is a
// configuration error: no scenario runs.
type MissingCredentialError struct {
	Var string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("scenario: missing credential: %s is not set", e.Var)
}

// Validate checks that both fields are non-empty.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return &MissingCredentialError{Var: EnvUsername}
	}
	if c.Password == "" {
		return &MissingCredentialError{Var: EnvPassword}
	}
	return nil
}

// CredentialsFromEnv reads the credentials through getenv (os.Getenv in
// production) and validates them.
func CredentialsFromEnv(getenv func(string) string) (Credentials, error) {
	c := Credentials{Username: getenv(EnvUsername), Password: getenv(EnvPassword)}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}
