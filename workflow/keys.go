package workflow

// Reserved bag keys shared by the built-in step library. Every key travels
// inside the continuation token, so it is client-visible (but tamper-proof).
// Only confirmed flow facts belong here, never secrets or transient values.
const (
	// KeyIdentifierType is the identifier kind: EMAIL / PHONE / USERNAME / EXTERNAL.
	KeyIdentifierType = "idf.type"
	// KeyIdentifierNorm is the normalized identifier value.
	KeyIdentifierNorm = "idf.norm"
	// KeyUserID is the user bound to this flow, once resolved.
	KeyUserID = "user.id"
	// KeyAuthOK marks that the caller has authenticated in this flow.
	KeyAuthOK = "auth.ok"
	// KeyAuthMethod records how the caller authenticated (pwd, otp, ...).
	KeyAuthMethod = "auth.method"
	// KeyOTPChallengeID is the OTP challenge the flow is waiting on.
	KeyOTPChallengeID = "otp.challengeId"
	// KeyOTPVerified marks a successfully verified OTP challenge.
	KeyOTPVerified = "otp.verified"
	// KeyNextWorkflow requests a workflow switch: when set at Halt time the
	// engine binds the continuation token to this workflow at step 0,
	// preserving the bag. Consumed by the engine, one-shot.
	KeyNextWorkflow = "wf.next"
	// KeyActionTokenPayload holds the payload of a consumed action token.
	KeyActionTokenPayload = "at.payload"
	// KeyActionTokenUserID is the user id extracted from that payload.
	KeyActionTokenUserID = "at.userId"
	// KeyTokens holds the issued credential pair on a login DONE.
	KeyTokens = "tokens"
	// KeyResult is the flow's final outward data, set before DONE.
	KeyResult = "result"
)
