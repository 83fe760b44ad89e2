// Package keyspace maps logical cache keys to version-stamped physical keys.
//
// Physical keys look like "{dataType}-{version}:{rawKey}". Bumping the version
// of one data type makes every key of that type unreachable (old entries age out
// under their previous version) without touching unrelated caches.
package keyspace

import "strings"

type DataType string

const (
	Balances      DataType = "balances"
	Expenses      DataType = "expenses"
	Settlements   DataType = "settlements"
	Groups        DataType = "group"
	Users         DataType = "user"
	Analytics     DataType = "analytics"
	Notifications DataType = "notifications"
	Default       DataType = "default"
)

// versions is read-only at runtime. Bump an entry when the cached shape of that
// type changes.
var versions = map[DataType]string{
	Balances:      "v1",
	Expenses:      "v2",
	Settlements:   "v1",
	Groups:        "v1",
	Users:         "v1",
	Analytics:     "v1",
	Notifications: "v1",
	Default:       "v1",
}

// detection order matters: ":balances" wins over a leading "group:".
var rules = []struct {
	dt      DataType
	substrs []string
}{
	{Balances, []string{":balances"}},
	{Expenses, []string{":expenses"}},
	{Settlements, []string{":settlements"}},
	{Analytics, []string{":analytics", ":dashboard"}},
	{Notifications, []string{":notifications"}},
}

// Types returns every known data type.
func Types() []DataType {
	return []DataType{Balances, Expenses, Settlements, Groups, Users, Analytics, Notifications, Default}
}

// Version returns the current version string for dt. Unknown types share the
// Default version.
func Version(dt DataType) string {
	if v, ok := versions[dt]; ok {
		return v
	}
	return versions[Default]
}

func Versioned(dt DataType, raw string) string {
	if _, ok := versions[dt]; !ok {
		dt = Default
	}
	return string(dt) + "-" + Version(dt) + ":" + raw
}

// AutoVersion versions raw using the data type inferred by Detect. Keys that
// already carry a "{type}-v<N>:" prefix are returned unchanged, so it is safe to
// call on physical keys.
func AutoVersion(raw string) string {
	if IsVersioned(raw) {
		return raw
	}
	return Versioned(Detect(raw), raw)
}

// Detect infers the data type of a raw key from its shape.
func Detect(raw string) DataType {
	for _, r := range rules {
		for _, s := range r.substrs {
			if strings.Contains(raw, s) {
				return r.dt
			}
		}
	}
	switch {
	case strings.HasPrefix(raw, "user:"):
		return Users
	case strings.HasPrefix(raw, "group:"):
		return Groups
	}
	return Default
}

// IsVersioned reports whether key starts with "{knownType}-v<digits>:".
func IsVersioned(key string) bool {
	_, ok := Parse(key)
	return ok
}

// Parse returns the data type of a physical key.
func Parse(key string) (DataType, bool) {
	for dt := range versions {
		p := string(dt) + "-v"
		if !strings.HasPrefix(key, p) {
			continue
		}
		rest := key[len(p):]
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i > 0 && i < len(rest) && rest[i] == ':' {
			return dt, true
		}
	}
	return "", false
}

// GroupKeys returns the physical keys cached for a group.
func GroupKeys(groupID string) []string {
	g := "group:" + groupID
	return physical(
		g,
		g+":members",
		g+":balances",
		g+":expenses",
		g+":settlements",
		g+":analytics",
	)
}

// UserKeys returns the physical keys cached for a user.
func UserKeys(userID string) []string {
	u := "user:" + userID
	return physical(
		u,
		u+":groups",
		u+":balances",
		u+":expenses",
		u+":settlements",
		u+":notifications",
		u+":dashboard",
	)
}

func physical(raw ...string) []string {
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = AutoVersion(k)
	}
	return out
}
