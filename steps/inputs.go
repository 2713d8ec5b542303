package steps

// Input DTOs for the built-in flows. Transports decode their request
// bodies into these and hand them to Start/Resume untouched.

// RegisterInput starts a registration flow. Password is optional; flows
// that collect it later leave it empty.
type RegisterInput struct {
	IdentifierType string `json:"identifierType"`
	Identifier     string `json:"identifier"`
	Password       string `json:"password,omitempty"`
}

// VerifyCodeInput answers an OTP challenge.
type VerifyCodeInput struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

// LoginIdentifyInput starts a login flow.
type LoginIdentifyInput struct {
	IdentifierType string `json:"identifierType"`
	Identifier     string `json:"identifier"`
}

// LoginPasswordInput continues a login flow with the password factor.
type LoginPasswordInput struct {
	Password string `json:"password"`
}

// ResetStartInput starts a password reset flow.
type ResetStartInput struct {
	IdentifierType string `json:"identifierType"`
	Identifier     string `json:"identifier"`
}

// ResetCommitInput redeems a reset action token and sets the new password.
type ResetCommitInput struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// Carrier views over the DTOs so one step can accept several input shapes.

type identifierCarrier interface {
	identifierInput() (typ, raw string)
}

type passwordCarrier interface {
	passwordInput() string
}

type codeCarrier interface {
	codeInput() (challengeID, code string)
}

type resetTokenCarrier interface {
	resetTokenInput() string
}

func (in RegisterInput) identifierInput() (string, string) { return in.IdentifierType, in.Identifier }
func (in RegisterInput) passwordInput() string             { return in.Password }

func (in LoginIdentifyInput) identifierInput() (string, string) {
	return in.IdentifierType, in.Identifier
}

func (in ResetStartInput) identifierInput() (string, string) { return in.IdentifierType, in.Identifier }

func (in VerifyCodeInput) codeInput() (string, string) { return in.ChallengeID, in.Code }

func (in LoginPasswordInput) passwordInput() string { return in.Password }

func (in ResetCommitInput) passwordInput() string   { return in.NewPassword }
func (in ResetCommitInput) resetTokenInput() string { return in.ResetToken }
