package domain

// Identity is a user record in the external auth service, keyed by email.
// WasCreated marks whether this request created it; only identities created
// in the current request are ever rolled back.
type Identity struct {
	ID         string
	Email      string
	WasCreated bool
}

// OperationResult is the row returned by a privileged domain mutation.
// Ok is authoritative: a transport-level 200 with Ok=false is a failure.
type OperationResult struct {
	Ok        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	UserUID   string `json:"user_uid,omitempty"`
	OwnerUID  string `json:"owner_uid,omitempty"`
	Role      string `json:"role,omitempty"`
	Disabled  *bool  `json:"disabled,omitempty"`
}

// AuthContext is the caller's resolved authorization for one request.
// It lives only for the request; nothing here is persisted.
type AuthContext struct {
	UserID       string
	Email        string
	Bearer       string // full "Bearer ..." header value
	IsSuperAdmin bool
	Role         string // owner / admin / "" when unknown
	AccountID    string
}

// Employee is one row of an account's staff listing.
type Employee struct {
	UID       string  `json:"user_uid"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Disabled  bool    `json:"disabled"`
	CreatedAt *string `json:"created_at"`
}
