package auth

import (
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleAdmin manages every account and may run maintenance operations.
	RoleAdmin Role = "admin"

	// RoleUser is a regular account. It may read and change only itself.
	RoleUser Role = "user"

	// RoleHardware is a device account (sensor gateway, kiosk). Same
	// self-only reach as RoleUser, never granted user management.
	RoleHardware Role = "hardware"
)

// ValidRoles is the set of valid account roles.
var ValidRoles = []Role{RoleAdmin, RoleUser, RoleHardware}

// IsValidUserRole returns true if the role is a valid role for an account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an account known to the directory.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is one login of one user. The two opaque tokens identify it;
// they are never serialised to clients as part of a session listing.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	SessionToken string     `json:"-"`
	RefreshToken string     `json:"-"`
	DeviceInfo   string     `json:"device_info,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	LoginAt      time.Time  `json:"login_at"`
	LastActivity time.Time  `json:"last_activity"`
	LogoutAt     *time.Time `json:"logout_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IsActive     bool       `json:"is_active"`
}

// IsLive reports whether the session is active and unexpired at now.
func (s *Session) IsLive(now time.Time) bool {
	return s != nil && s.IsActive && s.ExpiresAt.After(now)
}

// DeviceInfo describes the client that opened a session. Empty fields are
// stored as NULL.
type DeviceInfo struct {
	Device    string
	IP        string
	UserAgent string
}

// UserInput carries the fields accepted when creating or updating a user.
// An empty Role means RoleUser on create and "unchanged" on update; an
// empty Password on update keeps the current digest.
type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// SessionStats summarises session activity. "Today" starts at local
// midnight in the configured stats location.
type SessionStats struct {
	ActiveCount               int            `json:"active_sessions"`
	SessionsCreatedToday      int            `json:"total_sessions_today"`
	DistinctUsersToday        int            `json:"unique_users_today"`
	AvgSessionDurationMinutes float64        `json:"average_session_duration"`
	SessionsByDevice          map[string]int `json:"sessions_by_device"`
}

// UserStats summarises the account population.
type UserStats struct {
	TotalUsers    int            `json:"total_users"`
	ActiveUsers   int            `json:"active_users"`
	InactiveUsers int            `json:"inactive_users"`
	UsersByRole   map[string]int `json:"users_by_role"`
	RecentLogins  int            `json:"recent_logins"`
}

// DirectoryStats is the merged view returned by Directory.Stats.
type DirectoryStats struct {
	UserStats
	SessionStats
}

// unknownDevice is the bucket for sessions created without device info.
const unknownDevice = "Unknown"

// timeLayout is the persisted timestamp format. Fixed width keeps lexical
// order equal to chronological order on every supported dialect.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		t, _ = time.Parse(time.RFC3339Nano, s) //nolint:errcheck // zero time on garbage
	}
	return t.UTC()
}
