package tier

// Tier identifiers. Stored on file records at upload time and never
// rewritten afterwards.
const (
	Anonymous = "anonymous"
	Free      = "free"
	Pro       = "pro"
)

// Policy defines the quota and capability bundle for a tier.
type Policy struct {
	ID                  string `json:"id"`
	MaxSizeBytes        int64  `json:"maxSizeBytes"`
	DefaultExpiryHours  int    `json:"defaultExpiryHours"`
	MinExpiryHours      int    `json:"minExpiryHours"`
	MaxExpiryHours      int    `json:"maxExpiryHours"`
	PasswordAllowed     bool   `json:"passwordAllowed"`
	CustomExpiryAllowed bool   `json:"customExpiryAllowed"`
}

// Table maps tier IDs to their policies. It is immutable after process
// start; handlers receive it by value through the file manager.
type Table map[string]Policy

// Default returns the built-in tier table.
func Default() Table {
	return Table{
		Anonymous: {
			ID:                 Anonymous,
			MaxSizeBytes:       10 * 1024 * 1024,
			DefaultExpiryHours: 24,
			MinExpiryHours:     24,
			MaxExpiryHours:     24,
		},
		Free: {
			ID:                 Free,
			MaxSizeBytes:       200 * 1024 * 1024,
			DefaultExpiryHours: 168,
			MinExpiryHours:     168,
			MaxExpiryHours:     168,
		},
		Pro: {
			ID:                  Pro,
			MaxSizeBytes:        2 * 1024 * 1024 * 1024,
			DefaultExpiryHours:  720,
			MinExpiryHours:      1,
			MaxExpiryHours:      720,
			PasswordAllowed:     true,
			CustomExpiryAllowed: true,
		},
	}
}

// Resolve returns the policy for the given tier ID. Unknown or malformed
// IDs fail closed to the anonymous policy so a spoofed tier value can
// never grant elevated quota.
func (t Table) Resolve(id string) Policy {
	if p, ok := t[id]; ok {
		return p
	}
	return t[Anonymous]
}

// Known reports whether id names a configured tier.
func (t Table) Known(id string) bool {
	_, ok := t[id]
	return ok
}

// Rank orders tiers for upgrade checks. Unknown tiers rank lowest.
func Rank(id string) int {
	switch id {
	case Free:
		return 1
	case Pro:
		return 2
	default:
		return 0
	}
}
